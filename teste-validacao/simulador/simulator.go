package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// simulator dispara tráfego contra o gateway e conta os status recebidos.
type simulator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	// pause é multiplicado pelas esperas entre chamadas; 0 desliga as esperas.
	pause float64

	mu     sync.Mutex
	counts map[int]int
	errors int
}

func newSimulator(baseURL, apiKey string, pause float64) *simulator {
	return &simulator{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		pause:   pause,
		counts:  make(map[int]int),
	}
}

func (s *simulator) do(ctx context.Context, method, path, key string, body any) {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, rd)
	if err != nil {
		s.record(0)
		return
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "sentinela-simulador/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		s.record(0)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	s.record(resp.StatusCode)
}

// status 0 = erro de transporte
func (s *simulator) record(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		s.errors++
		return
	}
	s.counts[status]++
}

func (s *simulator) wait(ctx context.Context, base, jitter time.Duration) error {
	if s.pause <= 0 {
		return ctx.Err()
	}
	d := base
	if jitter > 0 {
		d += rand.N(jitter)
	}
	t := time.NewTimer(time.Duration(float64(d) * s.pause))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// normal: balance -> transação -> histórico, em ritmo humano.
func (s *simulator) normal(ctx context.Context, rounds int) error {
	for range rounds {
		s.do(ctx, http.MethodGet, "/api/balance", s.apiKey, nil)
		if err := s.wait(ctx, 300*time.Millisecond, 300*time.Millisecond); err != nil {
			return err
		}
		s.do(ctx, http.MethodPost, "/api/transaction", s.apiKey, map[string]any{
			"type":      "credit",
			"amount":    rand.IntN(50) + 1,
			"reference": "normal-sim",
		})
		if err := s.wait(ctx, 300*time.Millisecond, 300*time.Millisecond); err != nil {
			return err
		}
		s.do(ctx, http.MethodGet, "/api/history", s.apiKey, nil)
		if err := s.wait(ctx, 500*time.Millisecond, 500*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// attack: rajada concorrente (estoura o rate limit) seguida de chaves inválidas.
func (s *simulator) attack(ctx context.Context, flood, badKeys, parallel int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for range flood {
		g.Go(func() error {
			s.do(gctx, http.MethodGet, "/api/balance", s.apiKey, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := s.wait(ctx, time.Second, 0); err != nil {
		return err
	}

	for range badKeys {
		s.do(ctx, http.MethodGet, "/api/balance", "bad-key", nil)
		if err := s.wait(ctx, 200*time.Millisecond, 0); err != nil {
			return err
		}
	}
	return nil
}

// sequence: transações sem consultar o saldo antes.
func (s *simulator) sequence(ctx context.Context, n int) error {
	for range n {
		s.do(ctx, http.MethodPost, "/api/transaction", s.apiKey, map[string]any{
			"type": "debit", "amount": 1, "reference": "sequence-sim",
		})
		if err := s.wait(ctx, 200*time.Millisecond, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *simulator) summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make([]int, 0, len(s.counts))
	for c := range s.counts {
		codes = append(codes, c)
	}
	sort.Ints(codes)

	var b strings.Builder
	for _, c := range codes {
		fmt.Fprintf(&b, "%d: %d\n", c, s.counts[c])
	}
	if s.errors > 0 {
		fmt.Fprintf(&b, "errors: %d\n", s.errors)
	}
	return b.String()
}
