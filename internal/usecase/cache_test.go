package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

// startRESPServer serves GET and SET over the Redis wire protocol from an in-memory map.
func startRESPServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	var (
		mu    sync.Mutex
		store = map[string]string{}
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					args, err := readRESPCommand(r)
					if err != nil {
						return
					}
					mu.Lock()
					switch strings.ToLower(args[0]) {
					case "get":
						if value, ok := store[args[1]]; ok {
							fmt.Fprintf(conn, "$%d\r\n%s\r\n", len(value), value)
						} else {
							fmt.Fprint(conn, "$-1\r\n")
						}
					case "set":
						store[args[1]] = args[2]
						fmt.Fprint(conn, "+OK\r\n")
					default:
						fmt.Fprintf(conn, "-ERR unknown command '%s'\r\n", args[0])
					}
					mu.Unlock()
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func readRESPCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected request line %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad array length %q", line)
	}

	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimRight(header, "\r\n")[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestRedisCacheMapsMissingKeyToErrCacheMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: startRESPServer(t), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCache(client)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "comparison:missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := cache.Set(ctx, "comparison:req", `{"request_id":"req"}`, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := cache.Get(ctx, "comparison:req")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `{"request_id":"req"}` {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestRedisCacheConnectionErrorIsNotAMiss(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	_, err = NewRedisCache(client).Get(context.Background(), "comparison:any")
	if err == nil {
		t.Fatal("expected connection error, got nil")
	}
	if errors.Is(err, ErrCacheMiss) {
		t.Fatalf("connection failure must not be reported as a miss: %v", err)
	}
}
