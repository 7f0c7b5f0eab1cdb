// Package devices discovers Chromecast devices on the local network.
package devices

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

const (
	// CapabilityVideoOut is the bitmask for video output capability (bit 0)
	CapabilityVideoOut = 1
	// mDNS query timeout per request
	chromecastQueryTimeout = 750 * time.Millisecond
	// Faster polling while cache is empty for quick first discovery
	chromecastPollIntervalFast = 1 * time.Second
	// Slower polling once at least one device is known to reduce network load
	chromecastPollIntervalSlow = 4 * time.Second
	// Interface refresh cadence for add/remove changes
	chromecastIfaceRefreshInterval = 20 * time.Second
	// Health check cadence for cached devices
	chromecastHealthCheckInterval = 5 * time.Second

	googlecastService = "_googlecast._tcp"
)

// Device is a discovered Chromecast.
type Device struct {
	Name        string
	Addr        string // "host:port"
	IsAudioOnly bool
}

type castDevice struct {
	Name        string
	IsAudioOnly bool
}

// mdnsQuery is swapped out in tests.
var mdnsQuery = mdns.Query

// Scanner keeps a cache of Chromecast devices found over mDNS and drops
// devices that stop answering on their control port.
type Scanner struct {
	mu          sync.Mutex
	devices     map[string]castDevice
	onChange    []func([]Device)
	warmupOnce  sync.Once
	alive       func(address string) bool
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// NewScanner returns an empty Scanner.
func NewScanner() *Scanner {
	return &Scanner{
		devices: make(map[string]castDevice),
		alive:   HostPortIsAlive,
	}
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (s *Scanner) Log() *zerolog.Logger {
	if s.LogOutput != nil {
		s.initLogOnce.Do(func() {
			s.Logger = zerolog.New(s.LogOutput).With().Timestamp().Logger()
		})
	}
	return &s.Logger
}

// OnChange registers fn to be called with the full device list every time
// a device is added or removed. fn runs on the scanner's goroutines.
func (s *Scanner) OnChange(fn func([]Device)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Count returns the number of cached devices.
func (s *Scanner) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

func (s *Scanner) notify() {
	s.mu.Lock()
	fns := append([]func([]Device){}, s.onChange...)
	s.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	list := s.Devices()
	for _, fn := range fns {
		fn(list)
	}
}

func (s *Scanner) upsert(entry *mdns.ServiceEntry) {
	if entry == nil || entry.AddrV4 == nil {
		return
	}
	if !strings.Contains(entry.Name, "_googlecast") {
		return
	}

	address := fmt.Sprintf("%s:%d", entry.AddrV4, entry.Port)
	friendlyName := entry.Name

	for _, txt := range entry.InfoFields {
		if after, ok := strings.CutPrefix(txt, "fn="); ok {
			friendlyName = after
			break
		}
	}

	if idx := strings.Index(friendlyName, "._googlecast"); idx > 0 {
		friendlyName = friendlyName[:idx]
	}

	isAudioOnly := false
	for _, txt := range entry.InfoFields {
		if after, ok := strings.CutPrefix(txt, "ca="); ok {
			isAudioOnly = isChromecastAudioOnly(after)
			break
		}
	}

	dev := castDevice{
		Name:        friendlyName,
		IsAudioOnly: isAudioOnly,
	}

	s.mu.Lock()
	prev, known := s.devices[address]
	s.devices[address] = dev
	s.mu.Unlock()

	if !known || prev != dev {
		s.Log().Debug().Str("Method", "upsert").Str("Address", address).Str("Name", friendlyName).Msg("chromecast found")
		s.notify()
	}
}

func (s *Scanner) query(iface *net.Interface, entries chan *mdns.ServiceEntry, timeout time.Duration) {
	params := mdns.DefaultParams(googlecastService)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	params.WantUnicastResponse = true
	params.Logger = log.New(io.Discard, "", 0)
	if iface != nil {
		params.Interface = iface
	}
	if err := mdnsQuery(params); err != nil {
		s.Log().Debug().Str("Method", "query").Err(err).Msg("mdns query failed")
	}
}

// Warmup runs a single discovery round on every active interface and waits for it.
func (s *Scanner) Warmup(timeout time.Duration) {
	s.warmupOnce.Do(func() {
		s.warmup(timeout)
	})
}

func (s *Scanner) warmup(timeout time.Duration) {
	interfaces := ActiveNetworkInterfaces()

	entriesCh := make(chan *mdns.ServiceEntry, 256)
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		for entry := range entriesCh {
			s.upsert(entry)
		}
	}()

	if len(interfaces) > 0 {
		var wg sync.WaitGroup
		for _, iface := range interfaces {
			wg.Add(1)
			go func(iface net.Interface) {
				defer wg.Done()
				s.query(&iface, entriesCh, timeout)
			}(iface)
		}
		wg.Wait()
	} else {
		s.query(nil, entriesCh, timeout)
	}

	close(entriesCh)
	<-doneCh
}

func (s *Scanner) currentPollInterval() time.Duration {
	if s.Count() > 0 {
		return chromecastPollIntervalSlow
	}
	return chromecastPollIntervalFast
}

// Run continuously discovers Chromecast devices until ctx is canceled, using adaptive polling.
// It also health checks cached devices and removes the stale ones.
func (s *Scanner) Run(ctx context.Context) {
	go s.healthCheck(ctx)
	s.discover(ctx)
}

// discover queries on all active network interfaces, since the OS default interface
// may not be the one connected to the Chromecast network.
func (s *Scanner) discover(ctx context.Context) {
	startPollingWorker := func(parent context.Context, iface *net.Interface) context.CancelFunc {
		entriesCh := make(chan *mdns.ServiceEntry, 256)
		workerCtx, cancel := context.WithCancel(parent)

		go func() {
			for {
				select {
				case <-workerCtx.Done():
					return
				case entry := <-entriesCh:
					s.upsert(entry)
				}
			}
		}()

		go func() {
			pollTimer := time.NewTimer(0)
			defer pollTimer.Stop()

			for {
				select {
				case <-workerCtx.Done():
					return
				case <-pollTimer.C:
				}

				s.query(iface, entriesCh, chromecastQueryTimeout)
				pollTimer.Reset(s.currentPollInterval())
			}
		}()

		return cancel
	}

	pollWorkers := make(map[int]context.CancelFunc)
	refresh := func() {
		interfaces := ActiveNetworkInterfaces()

		active := make(map[int]net.Interface, len(interfaces))
		for _, iface := range interfaces {
			active[iface.Index] = iface

			if _, ok := pollWorkers[iface.Index]; ok {
				continue
			}

			pollIface := iface
			pollWorkers[iface.Index] = startPollingWorker(ctx, &pollIface)
		}

		for idx, cancel := range pollWorkers {
			if idx == -1 {
				continue
			}
			if _, ok := active[idx]; !ok {
				cancel()
				delete(pollWorkers, idx)
			}
		}

		// Without a usable interface, let the OS pick one.
		if len(interfaces) == 0 {
			if _, ok := pollWorkers[-1]; !ok {
				pollWorkers[-1] = startPollingWorker(ctx, nil)
			}
		} else if cancel, ok := pollWorkers[-1]; ok {
			cancel()
			delete(pollWorkers, -1)
		}
	}

	s.Warmup(chromecastQueryTimeout)
	refresh()

	refreshTicker := time.NewTicker(chromecastIfaceRefreshInterval)
	defer refreshTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, cancel := range pollWorkers {
				cancel()
			}
			return
		case <-refreshTicker.C:
			refresh()
		}
	}
}

func (s *Scanner) healthCheck(ctx context.Context) {
	ticker := time.NewTicker(chromecastHealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneDead()
		}
	}
}

// pruneDead removes cached devices that no longer accept TCP connections.
func (s *Scanner) pruneDead() {
	s.mu.Lock()
	addrs := make([]string, 0, len(s.devices))
	for address := range s.devices {
		addrs = append(addrs, address)
	}
	s.mu.Unlock()

	var removed bool
	for _, address := range addrs {
		if s.alive(address) {
			continue
		}

		s.mu.Lock()
		delete(s.devices, address)
		s.mu.Unlock()
		removed = true
		s.Log().Debug().Str("Method", "pruneDead").Str("Address", address).Msg("chromecast gone")
	}

	if removed {
		s.notify()
	}
}

// Devices returns the cached devices sorted by name.
func (s *Scanner) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Device, 0, len(s.devices))
	for address, device := range s.devices {
		result = append(result, Device{
			Name:        device.Name,
			Addr:        address,
			IsAudioOnly: device.IsAudioOnly,
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].Addr < result[j].Addr
		}
		return result[i].Name < result[j].Name
	})

	return result
}

// ActiveNetworkInterfaces returns all network interfaces that are up,
// multicast-capable, not loopback, and have an IPv4 address.
func ActiveNetworkInterfaces() []net.Interface {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var active []net.Interface
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		hasIPv4 := false
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
					hasIPv4 = true
					break
				}
			}
		}

		if hasIPv4 {
			active = append(active, iface)
		}
	}

	return active
}

// HostPortIsAlive checks if a device at the given address is reachable via TCP connection.
// Returns true if the connection succeeds within 2 seconds.
func HostPortIsAlive(address string) bool {
	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// isChromecastAudioOnly checks if a device is audio-only based on the "ca" capability field.
// Bit 0 of "ca" is Video Out. Parse failures count as a video device.
func isChromecastAudioOnly(caField string) bool {
	ca, err := strconv.Atoi(caField)
	if err != nil {
		return false
	}
	return (ca & CapabilityVideoOut) == 0
}
