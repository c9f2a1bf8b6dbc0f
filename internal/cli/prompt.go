package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// promptString asks for a value, keeping def on empty input or EOF.
func promptString(r *bufio.Reader, w io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(w, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(w, "%s: ", label)
	}
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// promptInt asks for a non-negative integer until one is given.
func promptInt(r *bufio.Reader, w io.Writer, label string, def int) int {
	for {
		input := promptString(r, w, label, strconv.Itoa(def))
		v, err := strconv.Atoi(input)
		if err == nil && v >= 0 {
			return v
		}
		fmt.Fprintln(w, "  Error: enter a whole number")
		if _, err := r.Peek(1); err != nil {
			return def
		}
	}
}

// promptBool accepts y/yes/true and n/no/false.
func promptBool(r *bufio.Reader, w io.Writer, label string, def bool) bool {
	d := "n"
	if def {
		d = "y"
	}
	for {
		switch strings.ToLower(promptString(r, w, label+" (y/n)", d)) {
		case "y", "yes", "true":
			return true
		case "n", "no", "false":
			return false
		}
		fmt.Fprintln(w, "  Error: answer y or n")
		if _, err := r.Peek(1); err != nil {
			return def
		}
	}
}
