package storage

import "testing"

func TestAttemptInFlight(t *testing.T) {
	cases := map[AttemptStatus]bool{
		StatusPending:   true,
		StatusBroadcast: true,
		StatusConfirmed: false,
		StatusFailed:    false,
	}
	for status, want := range cases {
		attempt := SweepAttempt{Status: status}
		if attempt.InFlight() != want {
			t.Fatalf("状态 %s 的在途判断应为 %t", status, want)
		}
	}
}

func TestAssetIsToken(t *testing.T) {
	if (AssetSpec{Kind: AssetNative}).IsToken() {
		t.Fatal("原生资产不应是代币")
	}
	if !(AssetSpec{Kind: AssetToken}).IsToken() {
		t.Fatal("代币资产判断不正确")
	}
}
