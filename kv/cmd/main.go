package cmd

import (
	"fmt"
	"strings"

	"github.com/sekolahku/docgate/kv"
	"github.com/spf13/cobra"
)

var (
	backend    string
	pebblePath string
	pdEndpoint []string
)

var CMD = &cobra.Command{
	Use:   "kv",
	Short: "direct low level store access",
}

func init() {
	CMD.PersistentFlags().StringVar(&backend, "store", "pebble", "store backend: pebble or tikv")
	CMD.PersistentFlags().StringVar(&pebblePath, "pebble-path", "pebble-db", "pebble data directory")
	CMD.PersistentFlags().StringSliceVar(&pdEndpoint, "pd-endpoint", nil, "tikv placement driver endpoints")

	CMD.AddCommand(listCmd)
	CMD.AddCommand(getCmd)
	CMD.AddCommand(putCmd)
	CMD.AddCommand(delCmd)
}

func open() (kv.KV, error) {
	switch backend {
	case "pebble":
		return kv.NewPebble(pebblePath)
	case "tikv":
		return kv.NewTikv(pdEndpoint...)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}

var listCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List keys, optionally under a prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open()
		if err != nil {
			return err
		}
		defer k.Close()

		var start, end []byte
		if len(args) == 1 {
			start = []byte(unescape(args[0]))
			end = kv.PrefixEnd(start)
		}

		r := k.Read()
		defer r.Close()
		for kv, err := range r.Iter(cmd.Context(), start, end) {
			if err != nil {
				return err
			}
			fmt.Println(escapeNonPrintable(kv.K))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get value for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open()
		if err != nil {
			return err
		}
		defer k.Close()

		r := k.Read()
		defer r.Close()
		v, err := r.Get(cmd.Context(), []byte(unescape(args[0])))
		if err != nil {
			return err
		}
		if v == nil {
			return fmt.Errorf("not found")
		}
		fmt.Println(string(v))
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put [key] [value]",
	Short: "Put a key-value pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open()
		if err != nil {
			return err
		}
		defer k.Close()

		w := k.Write()
		defer w.Close()
		if err := w.Put([]byte(unescape(args[0])), []byte(args[1])); err != nil {
			return err
		}
		return w.Commit(cmd.Context())
	},
}

var delCmd = &cobra.Command{
	Use:     "del [key]",
	Aliases: []string{"rm"},
	Short:   "Delete a key-value pair",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := open()
		if err != nil {
			return err
		}
		defer k.Close()

		w := k.Write()
		defer w.Close()
		if err := w.Del([]byte(unescape(args[0]))); err != nil {
			return err
		}
		return w.Commit(cmd.Context())
	},
}

func escapeNonPrintable(b []byte) string {
	var result strings.Builder
	for _, c := range b {
		if c >= 32 && c <= 126 {
			result.WriteByte(c)
		} else {
			result.WriteString(fmt.Sprintf("\\x%02x", c))
		}
	}
	return result.String()
}

// unescape turns the \xff separators printed by ls back into bytes
func unescape(s string) string {
	return strings.ReplaceAll(s, `\xff`, "\xff")
}
