package token

import (
	"strings"
	"testing"
)

func TestDeriveIsDeterministic(t *testing.T) {
	a := Derive(440, "TF_PLAY_GAME")
	b := Derive(440, "TF_PLAY_GAME")
	if a.Cmp(b) != 0 {
		t.Errorf("same input produced different ids: %s vs %s", a, b)
	}
}

func TestDeriveDistinguishesInputs(t *testing.T) {
	base := Derive(440, "TF_PLAY_GAME")

	if other := Derive(440, "TF_GET_KILL"); base.Cmp(other) == 0 {
		t.Error("different achievement ids collided")
	}
	if other := Derive(570, "TF_PLAY_GAME"); base.Cmp(other) == 0 {
		t.Error("different app ids collided")
	}
}

func TestDeriveFitsIn256Bits(t *testing.T) {
	id := Derive(440, "TF_PLAY_GAME")
	if id.BitLen() > 256 {
		t.Errorf("token id is %d bits, want <= 256", id.BitLen())
	}
}

func TestDeriveHexFormat(t *testing.T) {
	hex := DeriveHex(440, "TF_PLAY_GAME")
	if !strings.HasPrefix(hex, "0x") {
		t.Errorf("missing 0x prefix: %s", hex)
	}
	if len(hex) != 66 {
		t.Errorf("hex id length = %d, want 66 (zero-padded 32 bytes)", len(hex))
	}
	if hex != DeriveHex(440, "TF_PLAY_GAME") {
		t.Error("hex form is not deterministic")
	}
}
