// Package playback enforces the one-active-player invariant across an
// unbounded set of dynamically mounted media components. Components
// register on mount and request play/pause through the coordinator;
// nothing drives a player handle it did not acquire here.
package playback

import (
	"sync"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/logger"
)

// PlayerHandle is the control surface of an underlying media player
type PlayerHandle interface {
	Play() error
	Pause() error
}

// AppState mirrors the host lifecycle signal
type AppState string

const (
	AppStateActive     AppState = "active"
	AppStateBackground AppState = "background"
	AppStateInactive   AppState = "inactive"
)

// PlayState is a registration's playback state
type PlayState int

const (
	StatePaused PlayState = iota
	StatePlaying
)

// EligibleFunc decides whether a key may auto-resume on foreground
// return (e.g. still the visible item). A nil func allows everything.
type EligibleFunc func(key string) bool

type registration struct {
	key    string
	group  string
	handle PlayerHandle
	state  PlayState
}

// Coordinator is the process-wide registry of active media players.
// All mutation goes through its methods.
type Coordinator struct {
	mu            sync.Mutex
	registrations map[string]*registration
	activeByGroup map[string]string
	resumeKeys    []string // actives recorded at background transition
	appState      AppState
	eligible      EligibleFunc
	log           *zap.Logger
}

// NewCoordinator creates an empty coordinator in the active app state
func NewCoordinator() *Coordinator {
	return &Coordinator{
		registrations: make(map[string]*registration),
		activeByGroup: make(map[string]string),
		appState:      AppStateActive,
		log:           logger.Log,
	}
}

// SetEligibleFunc registers the foreground-resume eligibility check
func (c *Coordinator) SetEligibleFunc(fn EligibleFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eligible = fn
}

// Register adds a registration in the Paused state. Re-registering an
// existing key replaces its handle.
func (c *Coordinator) Register(key string, handle PlayerHandle, group string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.registrations[key] = &registration{
		key:    key,
		group:  group,
		handle: handle,
		state:  StatePaused,
	}

	c.log.Debug("player registered",
		zap.String("key", key),
		zap.String("group", group))
}

// Unregister removes a registration. If it was the active player for
// its group the slot becomes empty; no other player is auto-promoted,
// the next explicit RequestPlay wins.
func (c *Coordinator) Unregister(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, ok := c.registrations[key]
	if !ok {
		return
	}

	delete(c.registrations, key)
	if c.activeByGroup[reg.group] == key {
		delete(c.activeByGroup, reg.group)
	}

	c.log.Debug("player unregistered", zap.String("key", key))
}

// RequestPlay transitions a registration to Playing, pausing whichever
// player in the same group currently holds the active slot
func (c *Coordinator) RequestPlay(key string) error {
	c.mu.Lock()

	reg, ok := c.registrations[key]
	if !ok {
		c.mu.Unlock()
		return errors.New(errors.ErrorTypeNotFound, "player not registered: "+key, nil)
	}

	if c.appState == AppStateBackground {
		c.mu.Unlock()
		return errors.New(errors.ErrorTypeUnknown, "cannot play while backgrounded", nil)
	}

	var toPause *registration
	if activeKey, busy := c.activeByGroup[reg.group]; busy && activeKey != key {
		toPause = c.registrations[activeKey]
	}

	if toPause != nil {
		toPause.state = StatePaused
	}
	reg.state = StatePlaying
	c.activeByGroup[reg.group] = key
	c.mu.Unlock()

	// Handles are driven outside the lock; they may call back in.
	if toPause != nil {
		if err := toPause.handle.Pause(); err != nil {
			c.log.Warn("failed to pause displaced player",
				zap.String("key", toPause.key), zap.Error(err))
		}
	}

	if err := reg.handle.Play(); err != nil {
		c.mu.Lock()
		if current, ok := c.registrations[key]; ok {
			current.state = StatePaused
		}
		if c.activeByGroup[reg.group] == key {
			delete(c.activeByGroup, reg.group)
		}
		c.mu.Unlock()
		return err
	}

	return nil
}

// RequestPause transitions Playing to Paused for one key only
func (c *Coordinator) RequestPause(key string) error {
	c.mu.Lock()

	reg, ok := c.registrations[key]
	if !ok {
		c.mu.Unlock()
		return errors.New(errors.ErrorTypeNotFound, "player not registered: "+key, nil)
	}

	if reg.state != StatePlaying {
		c.mu.Unlock()
		return nil
	}

	reg.state = StatePaused
	if c.activeByGroup[reg.group] == key {
		delete(c.activeByGroup, reg.group)
	}
	c.mu.Unlock()

	return reg.handle.Pause()
}

// IsPlaying reports whether a key is in the Playing state
func (c *Coordinator) IsPlaying(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, ok := c.registrations[key]
	return ok && reg.state == StatePlaying
}

// ActiveKey returns the active player of a group, if any
func (c *Coordinator) ActiveKey(group string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.activeByGroup[group]
	return key, ok
}

// PlayingCount returns how many registrations are Playing across all
// groups
func (c *Coordinator) PlayingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, reg := range c.registrations {
		if reg.state == StatePlaying {
			count++
		}
	}
	return count
}

// OnAppStateChange consumes the host lifecycle signal. Backgrounding
// pauses every Playing registration and records the active keys;
// foreground return resumes exactly those keys if they are still
// registered and still eligible, otherwise they stay paused.
func (c *Coordinator) OnAppStateChange(state AppState) {
	c.mu.Lock()
	previous := c.appState
	c.appState = state

	switch state {
	case AppStateBackground:
		c.resumeKeys = c.resumeKeys[:0]
		var toPause []*registration
		for group, key := range c.activeByGroup {
			if reg, ok := c.registrations[key]; ok && reg.state == StatePlaying {
				reg.state = StatePaused
				c.resumeKeys = append(c.resumeKeys, key)
				toPause = append(toPause, reg)
			}
			delete(c.activeByGroup, group)
		}
		c.mu.Unlock()

		for _, reg := range toPause {
			if err := reg.handle.Pause(); err != nil {
				c.log.Warn("failed to pause on background",
					zap.String("key", reg.key), zap.Error(err))
			}
		}
		c.log.Debug("paused all players on background", zap.Int("count", len(toPause)))

	case AppStateActive:
		if previous != AppStateBackground {
			c.mu.Unlock()
			return
		}
		resume := c.resumeKeys
		c.resumeKeys = nil
		eligible := c.eligible
		c.mu.Unlock()

		for _, key := range resume {
			if eligible != nil && !eligible(key) {
				continue
			}
			// Still registered? RequestPlay rechecks under the lock.
			if err := c.RequestPlay(key); err != nil {
				c.log.Debug("skipped foreground resume",
					zap.String("key", key), zap.Error(err))
			}
		}

	default:
		c.mu.Unlock()
	}
}
