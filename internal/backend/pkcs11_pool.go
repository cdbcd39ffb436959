//go:build cgo

// Package backend: PKCS#11 session pooling for efficient HSM access.
package backend

import (
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"
)

// SessionPool manages PKCS#11 sessions for a single module and slot.
// Sessions are reused across operations and properly cleaned up on Close.
type SessionPool struct {
	mu        sync.Mutex
	ctx       *pkcs11.Ctx
	module    string
	slotID    uint
	pin       string
	available []pkcs11.SessionHandle        // sessions available for use
	inUse     map[pkcs11.SessionHandle]bool // sessions currently in use
	loginDone bool                          // whether login was performed
	closed    bool
}

var (
	// globalPools stores singleton pools per (module, slotID) combination
	globalPools   = make(map[string]*SessionPool)
	globalPoolsMu sync.Mutex
)

func poolKey(modulePath string, slotID uint) string {
	return fmt.Sprintf("%s:%d", modulePath, slotID)
}

// GetSessionPool returns the session pool for a PKCS#11 module and slot.
// If the pool doesn't exist, it creates one and initializes the module.
// The pool is a singleton per (modulePath, slotID) combination.
func GetSessionPool(modulePath string, slotID uint, pin string) (*SessionPool, error) {
	globalPoolsMu.Lock()
	defer globalPoolsMu.Unlock()

	key := poolKey(modulePath, slotID)

	if pool, ok := globalPools[key]; ok {
		pool.mu.Lock()
		if pool.closed {
			pool.mu.Unlock()
			delete(globalPools, key)
		} else {
			pool.mu.Unlock()
			return pool, nil
		}
	}

	ctx := pkcs11.New(modulePath)
	if ctx == nil {
		return nil, fmt.Errorf("failed to load PKCS#11 module: %s", modulePath)
	}

	// Initialize module (ignore CKR_CRYPTOKI_ALREADY_INITIALIZED)
	if err := ctx.Initialize(); err != nil {
		if p11err, ok := err.(pkcs11.Error); !ok || p11err != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			ctx.Destroy()
			return nil, fmt.Errorf("failed to initialize PKCS#11 module: %w", err)
		}
	}

	pool := &SessionPool{
		ctx:       ctx,
		module:    modulePath,
		slotID:    slotID,
		pin:       pin,
		available: make([]pkcs11.SessionHandle, 0),
		inUse:     make(map[pkcs11.SessionHandle]bool),
	}

	globalPools[key] = pool
	return pool, nil
}

// Context returns the underlying PKCS#11 context.
func (p *SessionPool) Context() *pkcs11.Ctx {
	return p.ctx
}

// Acquire reserves a session from the pool.
// If no session is available, a new one is created.
// Returns the session handle and a release function that MUST be called when done.
func (p *SessionPool) Acquire() (pkcs11.SessionHandle, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, nil, fmt.Errorf("session pool is closed")
	}

	var session pkcs11.SessionHandle
	var err error

	if len(p.available) > 0 {
		session = p.available[len(p.available)-1]
		p.available = p.available[:len(p.available)-1]
	} else {
		session, err = p.ctx.OpenSession(p.slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to open session: %w", err)
		}

		// Login if not already done (login is per-token, not per-session)
		if p.pin != "" && !p.loginDone {
			if err := p.ctx.Login(session, pkcs11.CKU_USER, p.pin); err != nil {
				if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_USER_ALREADY_LOGGED_IN {
					_ = p.ctx.CloseSession(session)
					return 0, nil, fmt.Errorf("failed to login: %w", err)
				}
			}
			p.loginDone = true
		}
	}

	p.inUse[session] = true

	release := func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		delete(p.inUse, session)

		if p.closed {
			_ = p.ctx.CloseSession(session)
			return
		}

		p.available = append(p.available, session)
	}

	return session, release, nil
}

// Close closes all sessions and finalizes the module.
// This should be called at program shutdown.
func (p *SessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	var errs []error

	// Logout first (once per token, on any session)
	if p.loginDone && (len(p.available) > 0 || len(p.inUse) > 0) {
		var anySession pkcs11.SessionHandle
		if len(p.available) > 0 {
			anySession = p.available[0]
		} else {
			for s := range p.inUse {
				anySession = s
				break
			}
		}
		if err := p.ctx.Logout(anySession); err != nil {
			if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_USER_NOT_LOGGED_IN {
				errs = append(errs, fmt.Errorf("logout: %w", err))
			}
		}
	}

	for _, session := range p.available {
		if err := p.ctx.CloseSession(session); err != nil {
			errs = append(errs, fmt.Errorf("close available session: %w", err))
		}
	}

	for session := range p.inUse {
		if err := p.ctx.CloseSession(session); err != nil {
			errs = append(errs, fmt.Errorf("close in-use session: %w", err))
		}
	}

	if err := p.ctx.Finalize(); err != nil {
		if e, ok := err.(pkcs11.Error); !ok || e != pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED {
			errs = append(errs, fmt.Errorf("finalize: %w", err))
		}
	}

	p.ctx.Destroy()

	globalPoolsMu.Lock()
	delete(globalPools, poolKey(p.module, p.slotID))
	globalPoolsMu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("errors closing pool: %v", errs)
	}
	return nil
}

// CloseAllPools closes all session pools.
// Use this for cleanup at program exit.
func CloseAllPools() {
	globalPoolsMu.Lock()
	pools := make([]*SessionPool, 0, len(globalPools))
	for _, pool := range globalPools {
		pools = append(pools, pool)
	}
	globalPoolsMu.Unlock()

	for _, pool := range pools {
		_ = pool.Close()
	}
}
