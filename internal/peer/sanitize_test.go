// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package peer

import (
	"strings"
	"testing"
)

func TestSanitizeFilename_Valid(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"file.txt", "file.txt"},
		{"/etc/passwd", "passwd"}, // componentes de diretório caem
		{`..\..\windows\system32\cmd.exe`, "cmd.exe"},
		{"...hidden", "hidden"}, // pontos iniciais caem
		{"./relative.bin", "relative.bin"},
		{"name with spaces.pdf", "name with spaces.pdf"},
		{"comidas.txt", "comidas.txt"}, // prefixo COM sem ser reservado
	}

	for _, tc := range cases {
		got, err := SanitizeFilename(tc.in)
		if err != nil {
			t.Errorf("SanitizeFilename(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, expected %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeFilename_Rejected(t *testing.T) {
	cases := []string{
		"",
		".",
		"..",
		"...",
		"///",
		`\\\`,
		"CON",
		"con.txt",
		"PRN",
		"aux.log",
		"NUL",
		"COM1",
		"com9.dat",
		"LPT1",
		"lpt9",
		"evil\x00name",
		"line\nbreak",
		strings.Repeat("a", 300),
	}

	for _, in := range cases {
		if got, err := SanitizeFilename(in); err == nil {
			t.Errorf("SanitizeFilename(%q) accepted as %q", in, got)
		}
	}
}

func TestSanitizeFilename_Properties(t *testing.T) {
	// Propriedade: toda saída aceita não tem separadores, não começa com
	// ponto, não é nome reservado e não é vazia
	inputs := []string{
		"a/b/c.txt", "x.bin", "..\\y", "dir/.config", "zz", "CON.backup.txt",
	}
	for _, in := range inputs {
		got, err := SanitizeFilename(in)
		if err != nil {
			continue
		}
		if got == "" {
			t.Errorf("%q: empty output accepted", in)
		}
		if strings.ContainsAny(got, `/\`) {
			t.Errorf("%q: output %q contains separator", in, got)
		}
		if strings.HasPrefix(got, ".") {
			t.Errorf("%q: output %q starts with dot", in, got)
		}
	}
}
