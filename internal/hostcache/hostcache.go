// Copyright © 2024 Dolphie-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hostcache resolves connection IPs to display hostnames, backed by
// a file of ip=hostname lines that is lazily populated via reverse DNS and
// reloaded whenever it changes on disk.
package hostcache

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// reloadDebounce collapses a burst of filesystem events into one reload.
const reloadDebounce = 100 * time.Millisecond

// Cache resolves IPs to hostnames, persisting newly-resolved entries back to
// its backing file and reloading that file when another process edits it.
type Cache struct {
	mu   sync.RWMutex
	path string
	log  *zap.Logger
	data map[string]string

	group singleflight.Group

	watcher  *fsnotify.Watcher
	reloadCh chan struct{}
	stopCh   chan struct{}
}

// New loads the cache file at path (creating it if absent) and starts
// watching it for external changes.
func New(path string, log *zap.Logger) (*Cache, error) {
	c := &Cache{path: path, log: log, data: make(map[string]string), reloadCh: make(chan struct{}, 10), stopCh: make(chan struct{})}
	if err := c.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		if log != nil {
			log.Warn("hostcache: could not watch cache file, external edits will not be picked up", zap.String("path", path), zap.Error(err))
		}
	} else {
		c.watcher = watcher
		go c.watchLoop()
		go c.reloadLoop()
	}
	return c, nil
}

func (c *Cache) load() error {
	f, err := os.OpenFile(c.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening host cache file: %w", err)
	}
	defer f.Close()

	data := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ip, host, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		data[ip] = host
	}

	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
	return nil
}

func (c *Cache) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				c.reloadCh <- struct{}{}
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			if c.log != nil {
				c.log.Warn("hostcache watcher error", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache) reloadLoop() {
	for {
		select {
		case <-c.reloadCh:
			time.Sleep(reloadDebounce)
			for len(c.reloadCh) > 0 {
				<-c.reloadCh
			}
			if err := c.load(); err != nil && c.log != nil {
				c.log.Warn("hostcache reload failed", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Resolve returns the display hostname for ip, reverse-resolving and
// persisting it to the backing file on first sight. Concurrent lookups for
// the same ip are deduplicated via singleflight.
func (c *Cache) Resolve(ctx context.Context, ip string) string {
	c.mu.RLock()
	if host, ok := c.data[ip]; ok {
		c.mu.RUnlock()
		return host
	}
	c.mu.RUnlock()

	v, _, _ := c.group.Do(ip, func() (interface{}, error) {
		host := reverseDNS(ctx, ip)
		c.mu.Lock()
		c.data[ip] = host
		c.mu.Unlock()
		c.appendToFile(ip, host)
		return host, nil
	})
	return v.(string)
}

func reverseDNS(ctx context.Context, ip string) string {
	resolver := net.Resolver{}
	names, err := resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ip
	}
	return strings.TrimSuffix(names[0], ".")
}

func (c *Cache) appendToFile(ip, host string) {
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		if c.log != nil {
			c.log.Warn("hostcache: failed to persist entry", zap.String("ip", ip), zap.Error(err))
		}
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s=%s\n", ip, host)
}

// Stop tears down the file watcher.
func (c *Cache) Stop() {
	close(c.stopCh)
	if c.watcher != nil {
		c.watcher.Close()
	}
}
