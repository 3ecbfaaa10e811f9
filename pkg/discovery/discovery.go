package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/nidzo732/fleetwork/pkg/log"
)

// DefaultGroupAddr is the multicast group+port workers announce on and the
// master listens on, absent an explicit pkg/config override.
const DefaultGroupAddr = "239.0.0.32:32152"

// DefaultInterval is how often an Announcer re-broadcasts its address.
const DefaultInterval = 5 * time.Second

// announcement is the wire payload broadcast by a worker: only its listen
// address.
type announcement struct {
	WorkerAddr string `json:"addr"`
}

// Announcer periodically broadcasts a worker's listen address over UDP
// multicast so an interested master can discover it without a pre-shared
// address list (spec §1's static pool is still authoritative; this only
// shortens finding the address to put in it).
type Announcer struct {
	groupAddr  string
	workerAddr string
	interval   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewAnnouncer builds an Announcer for workerAddr on groupAddr (empty
// defaults to DefaultGroupAddr/DefaultInterval). It does not start
// broadcasting; call Start.
func NewAnnouncer(workerAddr, groupAddr string, interval time.Duration) *Announcer {
	if groupAddr == "" {
		groupAddr = DefaultGroupAddr
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Announcer{
		groupAddr:  groupAddr,
		workerAddr: workerAddr,
		interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins broadcasting on a background goroutine. Failures to resolve
// or dial the multicast group are logged and treated as "discovery simply
// isn't available on this network" rather than fatal, matching the
// feature's best-effort standing.
func (a *Announcer) Start() {
	go a.run()
}

// Stop halts broadcasting and waits for the background goroutine to exit.
func (a *Announcer) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	<-a.doneCh
}

func (a *Announcer) run() {
	defer close(a.doneCh)
	logger := log.WithComponent("discovery-announcer")

	addr, err := net.ResolveUDPAddr("udp4", a.groupAddr)
	if err != nil {
		logger.Warn().Err(err).Str("group", a.groupAddr).Msg("cannot resolve multicast group, discovery disabled")
		return
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		logger.Warn().Err(err).Str("group", a.groupAddr).Msg("cannot dial multicast group, discovery disabled")
		return
	}
	defer conn.Close()

	payload, err := json.Marshal(announcement{WorkerAddr: a.workerAddr})
	if err != nil {
		logger.Warn().Err(err).Msg("cannot encode announcement")
		return
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	send := func() {
		if _, err := conn.Write(payload); err != nil {
			logger.Debug().Err(err).Msg("announcement send failed")
		}
	}
	send()
	for {
		select {
		case <-ticker.C:
			send()
		case <-a.stopCh:
			return
		}
	}
}

// Sighting is one worker address the master's Collector has heard from,
// and when it last heard from it.
type Sighting struct {
	Addr     string
	LastSeen time.Time
}

// Collector listens on groupAddr for Announcer broadcasts and keeps a
// last-seen table of every worker address it has heard, for an operator or
// a future auto-join flow to consult — it never mutates the master's own
// worker table directly (spec §1's pool stays config-driven).
type Collector struct {
	groupAddr string
	conn      *net.UDPConn

	mu        sync.Mutex
	sightings map[string]time.Time

	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewCollector builds a Collector bound to groupAddr (empty defaults to
// DefaultGroupAddr). It does not start listening; call Start.
func NewCollector(groupAddr string) (*Collector, error) {
	if groupAddr == "" {
		groupAddr = DefaultGroupAddr
	}
	addr, err := net.ResolveUDPAddr("udp4", groupAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve %s: %w", groupAddr, err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: listen %s: %w", groupAddr, err)
	}
	return &Collector{
		groupAddr: groupAddr,
		conn:      conn,
		sightings: make(map[string]time.Time),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins collecting announcements on a background goroutine.
func (c *Collector) Start() {
	go c.run()
}

// Stop closes the multicast socket and waits for the background goroutine
// to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { c.conn.Close() })
	<-c.doneCh
}

func (c *Collector) run() {
	defer close(c.doneCh)
	logger := log.WithComponent("discovery-collector")

	buf := make([]byte, 1024)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed by Stop, or a fatal read error either way
		}
		var ann announcement
		if err := json.Unmarshal(buf[:n], &ann); err != nil {
			logger.Debug().Err(err).Msg("discarding malformed announcement")
			continue
		}
		if ann.WorkerAddr == "" {
			continue
		}
		c.mu.Lock()
		c.sightings[ann.WorkerAddr] = time.Now()
		c.mu.Unlock()
	}
}

// Snapshot returns every worker address heard from, freshest last-seen
// first filtered to those seen within maxAge.
func (c *Collector) Snapshot(maxAge time.Duration) []Sighting {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	out := make([]Sighting, 0, len(c.sightings))
	for addr, seen := range c.sightings {
		if maxAge > 0 && seen.Before(cutoff) {
			continue
		}
		out = append(out, Sighting{Addr: addr, LastSeen: seen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// WaitFor blocks until the collector holds at least one sighting, of any
// age, or ctx is done, for tests and startup flows that want to know
// discovery actually found something before giving up on it.
func (c *Collector) WaitFor(ctx context.Context, pollInterval time.Duration) ([]Sighting, error) {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if s := c.Snapshot(0); len(s) > 0 {
			return s, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
