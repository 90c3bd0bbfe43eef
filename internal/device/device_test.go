package device

import "testing"

func TestAppInstalled(t *testing.T) {
	snap := &Snapshot{InstalledApps: []string{"Maps", " Weather "}}

	cases := []struct {
		name string
		app  string
		want bool
	}{
		{name: "exact", app: "Maps", want: true},
		{name: "case insensitive", app: "maps", want: true},
		{name: "surrounding spaces", app: "  weather ", want: true},
		{name: "unknown", app: "Chess", want: false},
		{name: "empty", app: "", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := snap.AppInstalled(tc.app); got != tc.want {
				t.Fatalf("AppInstalled(%q): got %v want %v", tc.app, got, tc.want)
			}
		})
	}
}

func TestSnapshotClone(t *testing.T) {
	snap := &Snapshot{
		Wallet:        WalletState{Exists: true, BalanceKara: 12.5},
		InstalledApps: []string{"Maps"},
		SecurityMode:  "normal",
	}

	clone := snap.Clone()
	clone.Wallet.BalanceKara = 99
	clone.InstalledApps[0] = "Chess"
	clone.InstalledApps = append(clone.InstalledApps, "Weather")

	if snap.Wallet.BalanceKara != 12.5 {
		t.Fatalf("clone 篡改了原快照余额: %f", snap.Wallet.BalanceKara)
	}
	if snap.InstalledApps[0] != "Maps" || len(snap.InstalledApps) != 1 {
		t.Fatalf("clone 篡改了原快照应用列表: %v", snap.InstalledApps)
	}

	var nilSnap *Snapshot
	if nilSnap.Clone() != nil {
		t.Fatal("nil snapshot clone should be nil")
	}
}
