// Copyright (c) 2025 Tallowteam. All rights reserved.
// Use of this source code is governed by the Flux License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package throttle implementa rate limiting de I/O com token bucket.
// O bucket reabastece a bytesPerSec tokens/segundo, com burst máximo de
// 2 segundos de taxa.
package throttle

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tallowteam/flux/internal/fluxerr"
)

// burstSeconds é a janela de burst do bucket (2s de taxa acumulável).
const burstSeconds = 2

// ThrottledWriter é um io.Writer com rate limiting baseado em token bucket.
type ThrottledWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// ThrottledReader é um io.Reader com rate limiting baseado em token bucket.
type ThrottledReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

// NewWriter cria um ThrottledWriter com a taxa máxima em bytes/segundo.
// Se bytesPerSec <= 0, retorna o writer original sem throttle (bypass).
func NewWriter(ctx context.Context, w io.Writer, bytesPerSec int64) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	return &ThrottledWriter{
		w:       w,
		limiter: newLimiter(bytesPerSec),
		ctx:     ctx,
	}
}

// NewReader cria um ThrottledReader com a taxa máxima em bytes/segundo.
// Se bytesPerSec <= 0, retorna o reader original sem throttle (bypass).
func NewReader(ctx context.Context, r io.Reader, bytesPerSec int64) io.Reader {
	if bytesPerSec <= 0 {
		return r
	}
	return &ThrottledReader{
		r:       r,
		limiter: newLimiter(bytesPerSec),
		ctx:     ctx,
	}
}

func newLimiter(bytesPerSec int64) *rate.Limiter {
	burst := int(bytesPerSec * burstSeconds)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// Write implementa io.Writer com rate limiting.
// Divide escritas maiores que o burst em pedaços para consumir tokens
// gradualmente.
func (tw *ThrottledWriter) Write(p []byte) (int, error) {
	totalWritten := 0

	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}

		// Espera tokens disponíveis (bloqueia respeitando o rate)
		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return totalWritten, err
		}

		n, err := tw.w.Write(p[:chunk])
		totalWritten += n
		if err != nil {
			return totalWritten, err
		}

		p = p[n:]
	}

	return totalWritten, nil
}

// Read implementa io.Reader com rate limiting. Os tokens são consumidos
// antes da leitura, limitados ao burst para evitar reservas enormes.
func (tr *ThrottledReader) Read(p []byte) (int, error) {
	want := len(p)
	if want > tr.limiter.Burst() {
		want = tr.limiter.Burst()
	}
	if want == 0 {
		return 0, nil
	}

	if err := tr.limiter.WaitN(tr.ctx, want); err != nil {
		return 0, err
	}

	return tr.r.Read(p[:want])
}

// ParseRate converte strings como "10MB/s", "500KB/s" ou "1GiB/s" para
// bytes/segundo. Taxa zero é rejeitada.
func ParseRate(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, "/s")
	if s == "" {
		return 0, fluxerr.New(fluxerr.KindConfig, "empty rate string")
	}

	// Ordenado do sufixo mais longo para o mais curto
	// para evitar que "mb" matche como "b"
	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gib", 1024 * 1024 * 1024},
		{"mib", 1024 * 1024},
		{"kib", 1024},
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	mult := int64(1)
	numStr := s
	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			mult = sfx.m
			numStr = strings.TrimSuffix(s, sfx.s)
			break
		}
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return 0, fluxerr.Wrap(fluxerr.KindConfig,
			fmt.Sprintf("invalid rate %q", orig), err)
	}

	bytesPerSec := int64(num * float64(mult))
	if bytesPerSec <= 0 {
		return 0, fluxerr.Newf(fluxerr.KindConfig, "rate must be positive, got %q", orig)
	}
	return bytesPerSec, nil
}
