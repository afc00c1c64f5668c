// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package syncer

import (
	"testing"
	"time"
)

func TestParseSchedule_FiveFieldsAutoExpand(t *testing.T) {
	// 5 campos ganham o campo de segundos zerado na frente
	sched, err := ParseSchedule("*/5 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	base := time.Date(2025, 6, 1, 10, 2, 30, 0, time.UTC)
	next := sched.Next(base)
	expected := time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("next fire %v, expected %v", next, expected)
	}
}

func TestParseSchedule_SixFields(t *testing.T) {
	sched, err := ParseSchedule("30 * * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}

	base := time.Date(2025, 6, 1, 10, 2, 10, 0, time.UTC)
	next := sched.Next(base)
	if next.Second() != 30 {
		t.Errorf("expected fire at second 30, got %v", next)
	}
}

func TestParseSchedule_Invalid(t *testing.T) {
	for _, expr := range []string{"", "not a cron", "* * *", "99 * * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) accepted", expr)
		}
	}
}
