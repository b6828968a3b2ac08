package msgtype_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
)

func TestRegisterAssignsIdentifierAfterReservedRange(t *testing.T) {
	r := msgtype.NewRegistry()
	mt := &msgtype.MessageType{FunctionGUID: uuid.New(), Flags: msgtype.Flags{Direction: msgtype.ClientToHost}}
	id, err := r.Register(mt)
	if err != nil {
		t.Fatal(err)
	}
	if id != msgtype.Identifier(msgtype.DefaultCount) {
		t.Fatalf("first custom id = %d, want %d", id, msgtype.DefaultCount)
	}
	if got, ok := r.FindIdentifier(mt.FunctionGUID); !ok || got != id {
		t.Fatalf("FindIdentifier = %d, %v", got, ok)
	}
}

func TestRegisterDuplicateFunctionFails(t *testing.T) {
	r := msgtype.NewRegistry()
	guid := uuid.New()
	if _, err := r.Register(&msgtype.MessageType{FunctionGUID: guid}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(&msgtype.MessageType{FunctionGUID: guid}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestLookupUnknownIdentifier(t *testing.T) {
	r := msgtype.NewRegistry()
	if _, ok := r.Lookup(msgtype.Identifier(999)); ok {
		t.Fatal("expected unknown identifier to miss")
	}
}

func TestPropertyMaskBits(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 3, 8: 8, 9: 9}
	for n, want := range cases {
		if got := msgtype.PropertyMaskBits(n); got != want {
			t.Errorf("PropertyMaskBits(%d) = %d, want %d", n, got, want)
		}
	}
}
