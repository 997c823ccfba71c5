package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/aql"
)

var (
	file    string
	update  bool
	simple  bool
	address = envOr("DOCGATE_ADDRESS", "http://localhost:5052")

	out io.Writer = os.Stdout

	putCmd = &cobra.Command{
		Use:     "put",
		Aliases: []string{"apply"},
		Short:   "Put documents from a JSON/YAML file",
		RunE:    put,
	}

	getCmd = &cobra.Command{
		Use:   "get [collection/id]",
		Short: "Get a document",
		Args:  cobra.ExactArgs(1),
		RunE:  get,
	}

	editCmd = &cobra.Command{
		Use:   "edit [collection/id]",
		Short: "Edit a document in $EDITOR",
		Args:  cobra.ExactArgs(1),
		RunE:  edit,
	}

	rmCmd = &cobra.Command{
		Use:     "rm [collection/id]",
		Aliases: []string{"delete"},
		Short:   "Delete a document",
		Args:    cobra.ExactArgs(1),
		RunE:    rm,
	}

	queryCmd = &cobra.Command{
		Use:     "query [aql]",
		Aliases: []string{"find"},
		Short:   "Query documents, e.g. '(order=date) attendance(class_id=c1)'",
		Args:    cobra.ExactArgs(1),
		RunE:    query,
	}

	watchCmd = &cobra.Command{
		Use:   "watch [aql]",
		Short: "Print the matching documents every time they change",
		Args:  cobra.ExactArgs(1),
		RunE:  watch,
	}

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Commit a batch of operations from a JSON/YAML file",
		RunE:  batch,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema [collection]",
		Short: "Show the schema of a collection, or set it with -f",
		Args:  cobra.ExactArgs(1),
		RunE:  schemaRun,
	}
)

// Document is one entry of a file given to put.
type Document struct {
	Collection string     `json:"collection"`
	ID         string     `json:"id,omitempty"`
	Data       api.Record `json:"data"`
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func init() {
	putCmd.Flags().StringVarP(&file, "file", "f", "", "Path to JSON/YAML file, - for stdin")
	putCmd.Flags().BoolVar(&update, "update", false, "merge into existing documents instead of replacing them")
	putCmd.MarkFlagRequired("file")

	batchCmd.Flags().StringVarP(&file, "file", "f", "", "Path to JSON/YAML file, - for stdin")
	batchCmd.Flags().BoolVar(&simple, "simple", false, "apply operations without checking them first")
	batchCmd.MarkFlagRequired("file")

	schemaCmd.Flags().StringVarP(&file, "file", "f", "", "Path to a JSON/YAML schema to store")
}

func RegisterCommands(root *cobra.Command) {
	root.PersistentFlags().StringVar(&address, "address", address, "docgate server address")

	root.AddCommand(putCmd)
	root.AddCommand(getCmd)
	root.AddCommand(editCmd)
	root.AddCommand(rmCmd)
	root.AddCommand(queryCmd)
	root.AddCommand(watchCmd)
	root.AddCommand(batchCmd)
	root.AddCommand(schemaCmd)
}

func readFile(file string) ([]byte, error) {
	var data []byte
	var err error

	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// parseDocuments reads one or more documents separated by ---.
func parseDocuments(data []byte) ([]Document, error) {
	var docs []Document
	for _, part := range strings.Split(string(data), "---\n") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		var doc Document
		if err := yaml.Unmarshal([]byte(part), &doc); err != nil {
			return nil, fmt.Errorf("failed to parse document: %w", err)
		}
		if doc.Collection == "" {
			return nil, fmt.Errorf("document without collection")
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// parseBatch accepts either {operations: [...]} or a bare list of operations.
func parseBatch(data []byte) ([]api.BatchOp, error) {
	var req api.BatchRequest
	if err := yaml.Unmarshal(data, &req); err == nil && req.Operations != nil {
		return req.Operations, nil
	}

	var ops []api.BatchOp
	if err := yaml.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}
	return ops, nil
}

func splitPath(arg string) (string, string, error) {
	collection, id, ok := strings.Cut(arg, "/")
	if !ok || collection == "" || id == "" {
		return "", "", fmt.Errorf("invalid id format, expected collection/id")
	}
	return collection, id, nil
}

func printYAML(v interface{}) error {
	enc, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode as YAML: %w", err)
	}
	_, err = out.Write(enc)
	return err
}

func checkResult(res api.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Code, res.Error)
	}
	return nil
}

func put(cmd *cobra.Command, args []string) error {
	data, err := readFile(file)
	if err != nil {
		return err
	}
	docs, err := parseDocuments(data)
	if err != nil {
		return err
	}

	c := New(address)
	for _, doc := range docs {
		var res api.Result
		if doc.ID == "" {
			res, err = c.Create(cmd.Context(), doc.Collection, "", doc.Data)
		} else {
			res, err = c.Put(cmd.Context(), doc.Collection, doc.ID, doc.Data, update)
		}
		if err := checkResult(res, err); err != nil {
			return fmt.Errorf("%s/%s: %w", doc.Collection, doc.ID, err)
		}

		verb := "updated"
		if res.Created {
			verb = "created"
		}
		fmt.Fprintf(out, "%s/%s %s\n", doc.Collection, res.ID, verb)
	}
	return nil
}

func get(cmd *cobra.Command, args []string) error {
	collection, id, err := splitPath(args[0])
	if err != nil {
		return err
	}

	rec, err := New(address).Get(cmd.Context(), collection, id)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	return printYAML(rec)
}

func rm(cmd *cobra.Command, args []string) error {
	collection, id, err := splitPath(args[0])
	if err != nil {
		return err
	}
	return checkResult(New(address).Delete(cmd.Context(), collection, id))
}

func query(cmd *cobra.Command, args []string) error {
	q, err := aql.Parse(args[0])
	if err != nil {
		return err
	}

	recs, err := New(address).Query(cmd.Context(), q.Collection, q.Request())
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	return printYAML(recs)
}

func watch(cmd *cobra.Command, args []string) error {
	q, err := aql.Parse(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	err = New(address).Watch(ctx, q.Collection, args[0], func(snap api.Snapshot) {
		if snap.Error != "" {
			return
		}
		fmt.Fprintln(out, "---")
		printYAML(snap.Records)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func batch(cmd *cobra.Command, args []string) error {
	data, err := readFile(file)
	if err != nil {
		return err
	}
	ops, err := parseBatch(data)
	if err != nil {
		return err
	}

	res, err := New(address).Batch(cmd.Context(), ops, simple)
	if err := checkResult(res, err); err != nil {
		return err
	}
	if res.Message != "" {
		fmt.Fprintln(out, res.Message)
		return nil
	}
	fmt.Fprintf(out, "%d operations committed\n", res.OperationsCount)
	return nil
}

func schemaRun(cmd *cobra.Command, args []string) error {
	c := New(address)

	if file == "" {
		s, err := c.GetSchema(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printYAML(s)
	}

	data, err := readFile(file)
	if err != nil {
		return err
	}
	var s map[string]interface{}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse schema: %w", err)
	}
	return c.PutSchema(cmd.Context(), args[0], s)
}

func edit(cmd *cobra.Command, args []string) error {
	collection, id, err := splitPath(args[0])
	if err != nil {
		return err
	}

	rec, err := New(address).Get(cmd.Context(), collection, id)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	delete(rec, api.FieldID)

	tmpfile, err := os.CreateTemp("", "docgate-edit-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmpfile.Name())

	enc, err := yaml.Marshal(Document{Collection: collection, ID: id, Data: rec})
	if err != nil {
		return err
	}
	tmpfile.Write(enc)
	tmpfile.Close()

	originalInfo, err := os.Stat(tmpfile.Name())
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vim"
	}
	cmd2 := exec.Command(editor, tmpfile.Name())
	cmd2.Stdin = os.Stdin
	cmd2.Stdout = os.Stdout
	cmd2.Stderr = os.Stderr
	if err := cmd2.Run(); err != nil {
		return err
	}

	newInfo, err := os.Stat(tmpfile.Name())
	if err != nil {
		return err
	}

	if newInfo.ModTime() == originalInfo.ModTime() {
		fmt.Fprintln(out, "Edit cancelled, no changes made")
		return nil
	}

	file = tmpfile.Name()
	update = false
	return put(cmd, args)
}
