package device

import (
	"context"
	"strings"
)

// WalletState reports the device wallet as seen at snapshot time.
type WalletState struct {
	Exists      bool    `json:"exists"`
	Address     string  `json:"address,omitempty"`
	BalanceKara float64 `json:"balance_kara"`
}

// PowerState reports battery charge. Fraction is in [0,1]. CapacityMAh is the
// battery's nominal capacity; zero means the device did not report it and
// consumers must fall back to an assumed value, visibly marked as such.
type PowerState struct {
	Fraction    float64 `json:"fraction"`
	CapacityMAh float64 `json:"capacity_mah,omitempty"`
	Charging    bool    `json:"charging,omitempty"`
}

// StorageState reports free storage. Reported distinguishes a real reading
// from an absent one; AvailableMB is meaningless when Reported is false.
type StorageState struct {
	AvailableMB float64 `json:"available_mb,omitempty"`
	Reported    bool    `json:"reported"`
}

// CameraState reports whether the camera subsystem is currently active.
type CameraState struct {
	Active    bool `json:"active"`
	Recording bool `json:"recording,omitempty"`
}

// NetworkState reports mesh/chain connectivity.
type NetworkState struct {
	PeerCount   int    `json:"peer_count"`
	BlockHeight uint64 `json:"block_height,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
}

// Snapshot is one immutable reading of device state. It is captured once per
// planning request and never mutated afterwards.
type Snapshot struct {
	Wallet        WalletState  `json:"wallet"`
	Power         PowerState   `json:"power"`
	Storage       StorageState `json:"storage"`
	Camera        CameraState  `json:"camera"`
	Network       NetworkState `json:"network"`
	InstalledApps []string     `json:"installed_apps,omitempty"`
	SecurityMode  string       `json:"security_mode,omitempty"`
	CapturedAt    int64        `json:"captured_at,omitempty"`
}

// AppInstalled reports whether the named application is present on the
// device. Matching ignores case and surrounding whitespace.
func (s *Snapshot) AppInstalled(name string) bool {
	if s == nil {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	for _, installed := range s.InstalledApps {
		if strings.ToLower(strings.TrimSpace(installed)) == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.InstalledApps = append([]string(nil), s.InstalledApps...)
	return &clone
}

// Provider supplies device snapshots. Implementations may block on I/O; the
// caller owns context deadlines.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Refresher overlays one section of a snapshot with fresher data, for
// example balance and peer count read from a chain endpoint.
type Refresher interface {
	Refresh(ctx context.Context, snap *Snapshot) error
}
