package gateway

import (
	"fmt"
)

func validName(what string, s string, max int) error {
	if len(s) < 1 {
		return invalidArgument("%s must not be empty", what)
	}
	if len(s) > max {
		return invalidArgument("%s must be at most %d bytes", what, max)
	}
	for _, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			(char == '.') ||
			(char == '-') ||
			(char == '_') ||
			(char == '@') ||
			(char == ':')) {
			return invalidArgument("%s has invalid character: %c", what, char)
		}
	}
	return nil
}

func validateCollection(collection string) error {
	return validName("collection", collection, 64)
}

func validateKey(key string) error {
	return validName("key", key, 256)
}

func validatePath(collection, key string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	return validateKey(key)
}

// docPath is the storage key of a document. Names are validated beforehand
// so neither part can contain the 0xff separator.
func docPath(collection, key string) []byte {
	return []byte("o\xff" + collection + "\xff" + key + "\xff")
}

func collectionPrefix(collection string) []byte {
	return []byte("o\xff" + collection + "\xff")
}

func keyFromPath(collection string, path []byte) (string, error) {
	prefix := collectionPrefix(collection)
	if len(path) < len(prefix)+1 || string(path[:len(prefix)]) != string(prefix) {
		return "", fmt.Errorf("unexpected document key %q", path)
	}
	return string(path[len(prefix) : len(path)-1]), nil
}
