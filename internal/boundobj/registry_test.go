package boundobj_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/boundobj"
	"github.com/nginetechnologies/sceneri-core-sub009/internal/netid"
)

type fakeOwner struct{ destroying bool }

func (f *fakeOwner) Destroying() bool { return f.destroying }

func TestBindAssignsIdentifierAndIsHostAuthoritativeByDefault(t *testing.T) {
	r := boundobj.NewRegistry()
	id, err := r.Bind(boundobj.OwnerHandle{Kind: boundobj.OwnerComponent, Value: &fakeOwner{}}, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if !id.Valid() {
		t.Fatal("expected valid identifier")
	}
	if !r.HasAuthorityOfBoundObject(id, netid.InvalidClient) {
		t.Fatal("expected host authority by default")
	}
}

func TestBindDuplicateGUIDFails(t *testing.T) {
	r := boundobj.NewRegistry()
	guid := uuid.New()
	if _, err := r.Bind(boundobj.OwnerHandle{}, guid); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Bind(boundobj.OwnerHandle{}, guid); err == nil {
		t.Fatal("expected duplicate guid bind to fail")
	}
}

func TestStageResolverFiresOnLateBind(t *testing.T) {
	r := boundobj.NewRegistry()
	guid := uuid.New()
	var got netid.BoundObjectIdentifier
	r.StageResolver(guid, func(id netid.BoundObjectIdentifier) { got = id })
	if got.Valid() {
		t.Fatal("resolver fired before bind")
	}
	id, err := r.Bind(boundobj.OwnerHandle{}, guid)
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("resolver got %v, want %v", got, id)
	}
}

func TestStageResolverFiresImmediatelyIfAlreadyBound(t *testing.T) {
	r := boundobj.NewRegistry()
	guid := uuid.New()
	id, err := r.Bind(boundobj.OwnerHandle{}, guid)
	if err != nil {
		t.Fatal(err)
	}
	var got netid.BoundObjectIdentifier
	r.StageResolver(guid, func(i netid.BoundObjectIdentifier) { got = i })
	if got != id {
		t.Fatalf("resolver got %v, want %v", got, id)
	}
}

func TestLookupRejectsDestroyingOwner(t *testing.T) {
	r := boundobj.NewRegistry()
	owner := &fakeOwner{}
	id, err := r.Bind(boundobj.OwnerHandle{Value: owner}, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	owner.destroying = true
	if _, err := r.Lookup(id); err != boundobj.ErrNotBound {
		t.Fatalf("expected ErrNotBound for destroying owner, got %v", err)
	}
}

func TestUnbindThenLookupFails(t *testing.T) {
	r := boundobj.NewRegistry()
	id, err := r.Bind(boundobj.OwnerHandle{}, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Unbind(id); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup(id); err != boundobj.ErrNotBound {
		t.Fatalf("expected ErrNotBound, got %v", err)
	}
}

func TestDelegateAndRevokeAuthority(t *testing.T) {
	r := boundobj.NewRegistry()
	id, err := r.Bind(boundobj.OwnerHandle{}, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	client := netid.ClientIdentifier(1)

	if err := r.DelegateBoundObjectAuthority(id, client, true); err != nil {
		t.Fatal(err)
	}
	if r.HasAuthorityOfBoundObject(id, netid.InvalidClient) {
		t.Fatal("host should no longer hold authority")
	}
	if !r.HasAuthorityOfBoundObject(id, client) {
		t.Fatal("delegate client should hold authority")
	}
	if got, ok := r.DelegateOf(id); !ok || got != client {
		t.Fatalf("DelegateOf = %v, %v", got, ok)
	}

	if err := r.RevokeBoundObjectAuthority(id, true); err != nil {
		t.Fatal(err)
	}
	if !r.HasAuthorityOfBoundObject(id, netid.InvalidClient) {
		t.Fatal("expected host authority restored after revoke")
	}
}

func TestDelegateRequiresHostCaller(t *testing.T) {
	r := boundobj.NewRegistry()
	id, err := r.Bind(boundobj.OwnerHandle{}, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.DelegateBoundObjectAuthority(id, netid.ClientIdentifier(1), false); err != boundobj.ErrNotHostAuthoritative {
		t.Fatalf("expected ErrNotHostAuthoritative, got %v", err)
	}
}

func TestCanHandleBoundObjectMessage(t *testing.T) {
	r := boundobj.NewRegistry()
	id, err := r.Bind(boundobj.OwnerHandle{}, uuid.Nil)
	if err != nil {
		t.Fatal(err)
	}
	client := netid.ClientIdentifier(1)
	other := netid.ClientIdentifier(2)

	if r.CanHandleBoundObjectMessage(id, client, false) {
		t.Fatal("non-authoritative client should not be handled")
	}
	if !r.CanHandleBoundObjectMessage(id, client, true) {
		t.Fatal("host-originated traffic should always be accepted")
	}

	if err := r.DelegateBoundObjectAuthority(id, client, true); err != nil {
		t.Fatal(err)
	}
	if !r.CanHandleBoundObjectMessage(id, client, false) {
		t.Fatal("delegate client should be handled")
	}
	if r.CanHandleBoundObjectMessage(id, other, false) {
		t.Fatal("non-delegate client should not be handled")
	}
}

func TestClearClientAuthorityOnDisconnect(t *testing.T) {
	r := boundobj.NewRegistry()
	id1, _ := r.Bind(boundobj.OwnerHandle{}, uuid.Nil)
	id2, _ := r.Bind(boundobj.OwnerHandle{}, uuid.Nil)
	client := netid.ClientIdentifier(7)
	if err := r.DelegateBoundObjectAuthority(id1, client, true); err != nil {
		t.Fatal(err)
	}
	if err := r.DelegateBoundObjectAuthority(id2, client, true); err != nil {
		t.Fatal(err)
	}

	affected := r.ClearClientAuthority(client)
	if len(affected) != 2 {
		t.Fatalf("expected 2 affected objects, got %d", len(affected))
	}
	if !r.HasAuthorityOfBoundObject(id1, netid.InvalidClient) || !r.HasAuthorityOfBoundObject(id2, netid.InvalidClient) {
		t.Fatal("expected host authority restored on both objects")
	}
}

func TestAllEnumeratesPersistentlyBoundObjects(t *testing.T) {
	r := boundobj.NewRegistry()
	guid := uuid.New()
	id, err := r.Bind(boundobj.OwnerHandle{}, guid)
	if err != nil {
		t.Fatal(err)
	}
	// An object with no persistent GUID must not appear in All().
	if _, err := r.Bind(boundobj.OwnerHandle{}, uuid.Nil); err != nil {
		t.Fatal(err)
	}

	all := r.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 persistent entry, got %d", len(all))
	}
	if all[0].ID != id || all[0].GUID != guid {
		t.Fatalf("unexpected entry %+v", all[0])
	}
}
