package priority

import (
	"errors"
	"testing"
)

func TestNop(t *testing.T) {
	for _, p := range []int{-5, 0, 1, 20, 99} {
		if err := Nop().Apply(p); err != nil {
			t.Errorf("Nop().Apply(%d) error = %v", p, err)
		}
	}
}

func TestNew_Disabled(t *testing.T) {
	s := New(false)
	if err := s.Apply(10); err != nil {
		t.Errorf("Apply() error = %v", err)
	}
}

func TestSetterFunc(t *testing.T) {
	boom := errors.New("boom")
	var got int
	s := SetterFunc(func(p int) error {
		got = p
		return boom
	})

	if err := s.Apply(7); !errors.Is(err, boom) {
		t.Errorf("Apply() error = %v, want boom", err)
	}
	if got != 7 {
		t.Errorf("SetterFunc received %d, want 7", got)
	}
}
