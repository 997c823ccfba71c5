// Package aql parses the text form of a query:
//
//	(limit=10, order=date, desc=true) attendance(class_id=c1, date>=2024-01-01, status in [HADIR, IZIN])
//
// The optional leading groups set options, the collection name follows,
// then its filters. Values may be bare identifiers, quoted strings or ? which
// takes the next parameter.
package aql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/sekolahku/docgate/api"
)

type TokenType int

const (
	TOKEN_ILLEGAL TokenType = iota
	TOKEN_EOF
	TOKEN_IDENT
	TOKEN_EQUALS
	TOKEN_NOT_EQUALS
	TOKEN_LESS
	TOKEN_LESS_EQUALS
	TOKEN_GREATER
	TOKEN_GREATER_EQUALS
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_LBRACKET
	TOKEN_RBRACKET
	TOKEN_STRING
	TOKEN_COMMA
	TOKEN_PARAM
)

func tokenName(i TokenType) string {
	switch i {
	case TOKEN_EOF:
		return "EOF"
	case TOKEN_IDENT:
		return "IDENT"
	case TOKEN_EQUALS:
		return "EQUALS"
	case TOKEN_NOT_EQUALS:
		return "NOT_EQUALS"
	case TOKEN_LESS:
		return "LESS"
	case TOKEN_LESS_EQUALS:
		return "LESS_EQUALS"
	case TOKEN_GREATER:
		return "GREATER"
	case TOKEN_GREATER_EQUALS:
		return "GREATER_EQUALS"
	case TOKEN_LPAREN:
		return "LPAREN"
	case TOKEN_RPAREN:
		return "RPAREN"
	case TOKEN_LBRACKET:
		return "LBRACKET"
	case TOKEN_RBRACKET:
		return "RBRACKET"
	case TOKEN_STRING:
		return "STRING"
	case TOKEN_COMMA:
		return "COMMA"
	case TOKEN_PARAM:
		return "PARAM"
	}
	return "ILLEGAL"
}

type Token struct {
	Type    TokenType
	Literal string
}

type Lexer struct {
	input        string
	position     int
	readPosition int
	ch           byte
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readIdentifier also swallows dates, times and negative numbers, they are
// all turned into values by the parser.
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '.' || l.ch == '-' || l.ch == ':' || l.ch == '@' || l.ch == '+' {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readString() (string, error) {
	position := l.position + 1
	for {
		l.readChar()
		if l.ch == 0 {
			return "", errors.New("unterminated string")
		}
		if l.ch == '"' {
			break
		}
	}
	return l.input[position:l.position], nil
}

// twoChar emits the two character token when the next char is '='.
func (l *Lexer) twoChar(one, two TokenType) Token {
	if l.peekChar() == '=' {
		ch := l.ch
		l.readChar()
		return Token{two, string(ch) + "="}
	}
	return Token{one, string(l.ch)}
}

func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespace()

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{TOKEN_EQUALS, "=="}
		} else {
			tok = Token{TOKEN_EQUALS, "="}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			tok = Token{TOKEN_NOT_EQUALS, "!="}
		} else {
			tok = Token{TOKEN_ILLEGAL, string(l.ch)}
		}
	case '<':
		tok = l.twoChar(TOKEN_LESS, TOKEN_LESS_EQUALS)
	case '>':
		tok = l.twoChar(TOKEN_GREATER, TOKEN_GREATER_EQUALS)
	case '(':
		tok = Token{TOKEN_LPAREN, string(l.ch)}
	case ')':
		tok = Token{TOKEN_RPAREN, string(l.ch)}
	case '[':
		tok = Token{TOKEN_LBRACKET, string(l.ch)}
	case ']':
		tok = Token{TOKEN_RBRACKET, string(l.ch)}
	case ',':
		tok = Token{TOKEN_COMMA, string(l.ch)}
	case '?':
		tok = Token{TOKEN_PARAM, string(l.ch)}
	case '"':
		if str, err := l.readString(); err == nil {
			tok = Token{TOKEN_STRING, str}
		} else {
			tok = Token{TOKEN_ILLEGAL, ""}
		}
	case 0:
		tok = Token{TOKEN_EOF, ""}
	default:
		if isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || (l.ch == '-' && isDigit(l.peekChar())) {
			tok.Literal = l.readIdentifier()
			tok.Type = TOKEN_IDENT
			return tok
		}
		tok = Token{TOKEN_ILLEGAL, string(l.ch)}
	}

	l.readChar()
	return tok
}

type Query struct {
	Collection string
	Filters    []api.Filter
	OrderBy    string
	Direction  api.Direction
	Limit      int
}

// Request is the query as sent over the wire.
func (q *Query) Request() api.QueryRequest {
	return api.QueryRequest{
		Filters:   q.Filters,
		OrderBy:   q.OrderBy,
		Direction: q.Direction,
		Limit:     q.Limit,
	}
}

func (q *Query) String() string {
	var parts []string

	var opts []string
	if q.Limit > 0 {
		opts = append(opts, fmt.Sprintf("limit=%d", q.Limit))
	}
	if q.OrderBy != "" {
		opts = append(opts, "order="+q.OrderBy)
		if q.Direction == api.Desc {
			opts = append(opts, "desc=true")
		}
	}
	if len(opts) > 0 {
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(opts, ", ")))
	}

	coll := q.Collection
	if len(q.Filters) > 0 {
		filters := make([]string, 0, len(q.Filters))
		for _, f := range q.Filters {
			switch f.Operator {
			case api.OpIn, api.OpNotIn:
				filters = append(filters, fmt.Sprintf("%s %s %s", f.Field, f.Operator, formatValue(f.Value)))
			case api.OpArrayContains:
				filters = append(filters, fmt.Sprintf("%s contains %s", f.Field, formatValue(f.Value)))
			default:
				filters = append(filters, fmt.Sprintf("%s%s%s", f.Field, f.Operator, formatValue(f.Value)))
			}
		}
		coll += fmt.Sprintf("(%s)", strings.Join(filters, ", "))
	}
	parts = append(parts, coll)

	return strings.Join(parts, " ")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return `"` + val + `"`
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []interface{}:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = formatValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}

type Parser struct {
	l        *Lexer
	curToken Token
	params   []interface{}
}

func NewParser(l *Lexer, params ...interface{}) *Parser {
	p := &Parser{l: l, params: params}
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.l.NextToken()
}

func (p *Parser) ParseQuery() (*Query, error) {

	query := &Query{}
	seen := make(map[string]bool)

	for p.curToken.Type == TOKEN_LPAREN {
		opts, err := p.parseFilters()
		if err != nil {
			return nil, err
		}
		for _, opt := range opts {
			if seen[opt.Field] {
				return nil, fmt.Errorf("opt %s specified twice", opt.Field)
			}
			seen[opt.Field] = true
			if err := query.setOption(opt); err != nil {
				return nil, err
			}
		}
	}

	if p.curToken.Type != TOKEN_IDENT {
		return nil, fmt.Errorf("expected identifier, got %s", tokenName(p.curToken.Type))
	}
	query.Collection = p.curToken.Literal
	p.nextToken()

	if p.curToken.Type == TOKEN_LPAREN {
		filters, err := p.parseFilters()
		if err != nil {
			return nil, err
		}
		query.Filters = filters
	}

	if p.curToken.Type != TOKEN_EOF {
		return nil, fmt.Errorf("unexpected %s after query", tokenName(p.curToken.Type))
	}

	return query, nil
}

func (q *Query) setOption(opt api.Filter) error {
	if opt.Operator != api.OpEqual {
		return fmt.Errorf("opt %s must be set with =", opt.Field)
	}
	switch opt.Field {
	case "limit":
		switch n := opt.Value.(type) {
		case int64:
			if n > 0 {
				q.Limit = int(n)
				return nil
			}
		}
		return fmt.Errorf("limit must be a positive number")
	case "order":
		s, ok := opt.Value.(string)
		if !ok || s == "" {
			return fmt.Errorf("order must be a field name")
		}
		q.OrderBy = s
		if q.Direction == "" {
			q.Direction = api.Asc
		}
	case "desc":
		b, ok := opt.Value.(bool)
		if !ok {
			return fmt.Errorf("desc must be true or false")
		}
		if b {
			q.Direction = api.Desc
		} else {
			q.Direction = api.Asc
		}
	default:
		return fmt.Errorf("unknown opt %s", opt.Field)
	}
	return nil
}

func (p *Parser) parseFilters() ([]api.Filter, error) {
	var filters []api.Filter

	p.nextToken() // consume (

	for p.curToken.Type != TOKEN_RPAREN && p.curToken.Type != TOKEN_EOF {

		for p.curToken.Type == TOKEN_COMMA {
			p.nextToken()
		}
		if p.curToken.Type == TOKEN_RPAREN {
			break
		}

		if p.curToken.Type != TOKEN_IDENT {
			return nil, fmt.Errorf("expected identifier in filter, got %s", tokenName(p.curToken.Type))
		}

		key := p.curToken.Literal
		p.nextToken()

		var op api.Operator
		switch p.curToken.Type {
		case TOKEN_EQUALS:
			op = api.OpEqual
		case TOKEN_NOT_EQUALS:
			op = api.OpNotEqual
		case TOKEN_LESS:
			op = api.OpLess
		case TOKEN_LESS_EQUALS:
			op = api.OpLessEqual
		case TOKEN_GREATER:
			op = api.OpGreater
		case TOKEN_GREATER_EQUALS:
			op = api.OpGreaterEqual
		case TOKEN_IDENT:
			switch p.curToken.Literal {
			case "in":
				op = api.OpIn
			case "not-in":
				op = api.OpNotIn
			case "contains":
				op = api.OpArrayContains
			}
		}
		if op == "" {
			return nil, fmt.Errorf("expected operator after %s, got %s", key, tokenName(p.curToken.Type))
		}
		p.nextToken()

		var value interface{}
		var err error
		if op == api.OpIn || op == api.OpNotIn {
			value, err = p.parseList()
		} else {
			value, err = p.parseValue()
		}
		if err != nil {
			return nil, err
		}

		filters = append(filters, api.Filter{Field: key, Operator: op, Value: value})
	}

	if p.curToken.Type != TOKEN_RPAREN {
		return nil, errors.New("expected )")
	}
	p.nextToken()

	return filters, nil
}

func (p *Parser) parseList() ([]interface{}, error) {
	if p.curToken.Type == TOKEN_PARAM {
		v, err := p.param()
		if err != nil {
			return nil, err
		}
		list, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("parameter for a list must be []interface{}, got %T", v)
		}
		p.nextToken()
		return list, nil
	}

	if p.curToken.Type != TOKEN_LBRACKET {
		return nil, fmt.Errorf("expected [, got %s", tokenName(p.curToken.Type))
	}
	p.nextToken()

	list := []interface{}{}
	for p.curToken.Type != TOKEN_RBRACKET {
		if p.curToken.Type == TOKEN_COMMA {
			p.nextToken()
			continue
		}
		if p.curToken.Type == TOKEN_EOF {
			return nil, errors.New("expected ]")
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	p.nextToken()

	return list, nil
}

// parseValue consumes one value token.
func (p *Parser) parseValue() (interface{}, error) {
	var value interface{}

	switch p.curToken.Type {
	case TOKEN_IDENT:
		value = identValue(p.curToken.Literal)
	case TOKEN_STRING:
		value = p.curToken.Literal
	case TOKEN_PARAM:
		v, err := p.param()
		if err != nil {
			return nil, err
		}
		value = v
	default:
		return nil, fmt.Errorf("expected identifier or string as value, got %s", tokenName(p.curToken.Type))
	}

	p.nextToken()
	return value, nil
}

func (p *Parser) param() (interface{}, error) {
	if len(p.params) == 0 {
		return nil, errors.New("not enough parameters")
	}
	v := p.params[0]
	p.params = p.params[1:]
	return v, nil
}

func identValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if s == "" || !(isDigit(s[0]) || s[0] == '-') {
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Parse parses input, filling each ? with the next of params. Extra params
// are ignored.
func Parse(input string, params ...interface{}) (*Query, error) {
	l := NewLexer(input)
	p := NewParser(l, params...)
	return p.ParseQuery()
}

func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return unicode.IsDigit(rune(ch))
}
