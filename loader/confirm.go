// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package loader

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfirmFromReader creates an interactive y/N confirmation.
// Anything other than "y" or "yes" (including end of input) means "no".
func ConfirmFromReader(r io.Reader, w io.Writer) ConfirmFunc {
	rdr := bufio.NewReader(r)
	return func(prompt string) (bool, error) {
		if _, err := fmt.Fprintf(w, "%s [y/N]: ", prompt); err != nil {
			return false, fmt.Errorf("failed to ask for confirmation: %w", err)
		}
		line, err := rdr.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, fmt.Errorf("failed to read confirmation: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

// AlwaysConfirm is used for non-interactive runs (--yes)
func AlwaysConfirm(prompt string) (bool, error) {
	return true, nil
}
