package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bullno1/libhakomari"
)

// stdioAuthHandler renders a device's passphrase screen as ASCII art and
// reads pointer taps from stdin as "x y" pairs, one per line, terminated
// by a blank line. It is the default AuthHandler for the CLI unless
// --no-input is set.
type stdioAuthHandler struct{}

func (stdioAuthHandler) AskPassphrase(ctx *hakomari.AuthContext) error {
	renderScreen(os.Stdout, ctx.PassphraseScreen())
	fmt.Println("tap coordinates as \"x y\", blank line to submit, q to cancel")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		if line == "q" {
			return errors.New("passphrase entry cancelled")
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			fmt.Println("expected: x y")
			continue
		}
		x, errX := strconv.ParseUint(fields[0], 10, 32)
		y, errY := strconv.ParseUint(fields[1], 10, 32)
		if errX != nil || errY != nil {
			fmt.Println("expected: x y")
			continue
		}

		if err := ctx.InputPointer(uint32(x), uint32(y), true); err != nil {
			return err
		}
		if err := ctx.InputPointer(uint32(x), uint32(y), false); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func renderScreen(w *os.File, s *hakomari.PassphraseScreen) {
	for y := uint32(0); y < s.Height; y++ {
		line := make([]byte, s.Width)
		for x := uint32(0); x < s.Width; x++ {
			if s.Pixel(x, y) {
				line[x] = '#'
			} else {
				line[x] = '.'
			}
		}
		fmt.Fprintln(w, string(line))
	}
}
