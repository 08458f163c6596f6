package pool

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tronsweep/internal/tron"
)

const testAddress = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func TestRedactHandlesShortTokens(t *testing.T) {
	cases := []struct {
		token string
		want  string
	}{
		{"", "(anonymous)"},
		{"a", "..."},
		{"ab", "..."},
		{"abc", "ab..."},
		{"abcdefgh", "ab..."},
		{"abcdefghi", "abcdefgh..."},
	}
	for _, tc := range cases {
		if got := redact(tc.token); got != tc.want {
			t.Fatalf("redact(%q) = %q, 期望 %q", tc.token, got, tc.want)
		}
	}
}

func newTestPool(t *testing.T, srvURL string, keys []string) *Pool {
	t.Helper()
	client, err := tron.NewClient(tron.Options{
		Network: "mainnet",
		NodeURL: srvURL,
		Timeout: time.Second,
	}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("构造客户端失败: %v", err)
	}
	return New(client, keys, zerolog.Nop())
}

func TestRotatesToHealthySlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("TRON-PRO-API-KEY") == "bad-key" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"balance": 42})
	}))
	defer srv.Close()

	p := newTestPool(t, srv.URL, []string{"bad-key", "good-key"})

	// 多次调用, 无论先选到哪个槽位都应成功
	for i := 0; i < 4; i++ {
		balance, err := p.GetBalance(context.Background(), testAddress)
		if err != nil {
			t.Fatalf("应切换到健康槽位: %v", err)
		}
		if balance.IntPart() != 42 {
			t.Fatalf("余额应为 42, 实际 %s", balance)
		}
	}

	var badFailures int
	for _, status := range p.Snapshot() {
		if status.Token == "ba..." {
			badFailures = status.ConsecutiveFailures
		}
	}
	if badFailures == 0 {
		t.Fatal("被限流的槽位应累计失败次数")
	}
}

func TestAllSlotsThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestPool(t, srv.URL, []string{"key-a", "key-b"})

	_, err := p.GetBalance(context.Background(), testAddress)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("全部限流应返回 ErrRateLimited: %v", err)
	}
	if !errors.Is(err, tron.ErrThrottled) {
		t.Fatalf("应携带底层限流错误: %v", err)
	}

	// 冷却未过, 不应再触发上游调用
	_, err = p.GetBalance(context.Background(), testAddress)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("冷却期内应直接返回 ErrRateLimited: %v", err)
	}
}

func TestNonTransientErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newTestPool(t, srv.URL, []string{"key-a", "key-b"})

	_, err := p.GetBalance(context.Background(), testAddress)
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Fatalf("非限流错误应原样返回: %v", err)
	}

	for _, status := range p.Snapshot() {
		if status.ConsecutiveFailures != 0 {
			t.Fatal("非限流错误不应惩罚槽位")
		}
	}
}

func TestSuccessResetsSlot(t *testing.T) {
	throttle := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if throttle {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"balance": 1})
	}))
	defer srv.Close()

	p := newTestPool(t, srv.URL, []string{"only-key"})

	if _, err := p.GetBalance(context.Background(), testAddress); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("单槽位被限流应返回 ErrRateLimited: %v", err)
	}
	if p.Snapshot()[0].ConsecutiveFailures != 1 {
		t.Fatal("失败计数应为 1")
	}

	// 直接解除冷却, 模拟时间流逝
	p.slots[0].mu.Lock()
	p.slots[0].cooldown = time.Time{}
	p.slots[0].mu.Unlock()
	throttle = false

	if _, err := p.GetBalance(context.Background(), testAddress); err != nil {
		t.Fatalf("冷却结束后应恢复: %v", err)
	}
	if p.Snapshot()[0].ConsecutiveFailures != 0 {
		t.Fatal("成功后失败计数应清零")
	}
}

func TestAnonymousFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("TRON-PRO-API-KEY") != "" {
			t.Fatal("匿名槽位不应携带 API key")
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"balance": 7})
	}))
	defer srv.Close()

	p := newTestPool(t, srv.URL, nil)
	if len(p.Snapshot()) != 1 {
		t.Fatal("无 key 时应降级为单个匿名槽位")
	}
	if p.Snapshot()[0].Token != "(anonymous)" {
		t.Fatalf("匿名槽位标识不正确: %s", p.Snapshot()[0].Token)
	}

	balance, err := p.GetBalance(context.Background(), testAddress)
	if err != nil || balance.IntPart() != 7 {
		t.Fatalf("匿名槽位应可用: %v %s", err, balance)
	}
}
