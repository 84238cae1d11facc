package domain

import "fmt"

// WalletSession is the single source of truth for the connected blockchain
// identity: which address, on which chain, under which platform username.
// A zero Address means "disconnected", which is a normal state, not an error.
type WalletSession struct {
	Address  string `json:"address"`
	ChainID  int64  `json:"chain_id"`
	Username string `json:"username,omitempty"`
}

// Connected reports whether a wallet address is present.
func (s WalletSession) Connected() bool {
	return s.Address != ""
}

// ShortAddress returns the 0x1234...abcd form used in UI surfaces.
func (s WalletSession) ShortAddress() string {
	if len(s.Address) < 10 {
		return s.Address
	}
	return fmt.Sprintf("%s...%s", s.Address[:6], s.Address[len(s.Address)-4:])
}
