package wallet

import (
	"fmt"
	"io"
	"sync"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// ProgramDialer builds a program client that signs its calls as id.
type ProgramDialer func(id *Identity) (domain.ProgramClient, error)

// Context pairs the connected operator identity with a program client. It
// is created by Connect and torn down by Close; a closed or zero Context
// reports not ready.
type Context struct {
	mu       sync.RWMutex
	identity *Identity
	program  domain.ProgramClient
}

// Connect loads the operator identity and dials the program client.
func Connect(cfg KeyConfig, dial ProgramDialer) (*Context, error) {
	id, err := LoadIdentity(cfg)
	if err != nil {
		return nil, err
	}
	program, err := dial(id)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial program: %w", err)
	}
	return &Context{identity: id, program: program}, nil
}

// NewContext wraps an existing identity and program client.
func NewContext(id *Identity, program domain.ProgramClient) *Context {
	return &Context{identity: id, program: program}
}

// Ready returns nil when both an identity and a program client are present,
// and an error wrapping domain.ErrNotReady naming the missing part otherwise.
func (c *Context) Ready() error {
	if c == nil {
		return fmt.Errorf("wallet not connected: %w", domain.ErrNotReady)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.identity == nil:
		return fmt.Errorf("wallet not connected: %w", domain.ErrNotReady)
	case c.program == nil:
		return fmt.Errorf("program not initialized: %w", domain.ErrNotReady)
	}
	return nil
}

// PublicKey returns the operator's base58 public key, or "" when
// disconnected.
func (c *Context) PublicKey() string {
	if c == nil {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil {
		return ""
	}
	return c.identity.PublicKey()
}

// Program returns the program client, or nil when disconnected.
func (c *Context) Program() domain.ProgramClient {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.program
}

// Close drops the identity and closes the program client when it holds a
// connection.
func (c *Context) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	program := c.program
	c.identity, c.program = nil, nil
	c.mu.Unlock()

	if closer, ok := program.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
