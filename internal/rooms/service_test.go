package rooms

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/testutil"
)

var (
	owner    = Actor{UserID: "user-owner", Name: "Olivia"}
	student  = Actor{UserID: "user-student", Name: "Sam"}
	stranger = Actor{UserID: "user-stranger", Name: ""}
)

func newTestService(t *testing.T, cascade ...CascadeFunc) (*Service, *testutil.RecordingPublisher) {
	t.Helper()
	db := testutil.OpenDatabase(t, &Room{}, &Participant{}, &JoinRequest{})
	publisher := &testutil.RecordingPublisher{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider: &testutil.SequentialIDs{Prefix: "ROOM"},
		Publisher:  publisher,
		Cascade:    cascade,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, publisher
}

func mustCreateRoom(t *testing.T, service *Service, isPublic bool) RoomView {
	t.Helper()
	view, err := service.CreateRoom(context.Background(), owner, "  Calculus group ", isPublic)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return view
}

func TestCreateRoomMakesCreatorAdmin(t *testing.T) {
	service, publisher := newTestService(t)
	view := mustCreateRoom(t, service, true)

	if view.Room.Name != "Calculus group" {
		t.Fatalf("expected trimmed name, got %q", view.Room.Name)
	}
	if view.Room.RoomID != "ROOM-1" {
		t.Fatalf("unexpected room id %q", view.Room.RoomID)
	}
	participant, ok := view.Participant(owner.UserID)
	if !ok || participant.Role != RoleAdmin || participant.Name != "Olivia" {
		t.Fatalf("expected creator admin participant, got %#v", view.Participants)
	}
	if publisher.Last().Type != realtime.EventRoomChanged {
		t.Fatalf("expected room-changed event, got %#v", publisher.Last())
	}
}

func TestCreateRoomRejectsBlankName(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.CreateRoom(context.Background(), owner, "   ", true)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if apperr.CodeOf(err) != "rooms.create_room.invalid_name" {
		t.Fatalf("unexpected code %q", apperr.CodeOf(err))
	}
}

func TestJoinPublicRoomIsIdempotent(t *testing.T) {
	service, publisher := newTestService(t)
	view := mustCreateRoom(t, service, true)
	ctx := context.Background()

	if _, err := service.JoinRoom(ctx, student, view.Room.RoomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	eventsAfterFirstJoin := len(publisher.Events())
	joined, err := service.JoinRoom(ctx, student, view.Room.RoomID)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if len(joined.Participants) != 2 {
		t.Fatalf("expected two participants, got %d", len(joined.Participants))
	}
	if len(publisher.Events()) != eventsAfterFirstJoin {
		t.Fatalf("expected no event for repeated join")
	}
	membership, err := service.Membership(ctx, view.Room.RoomID, student.UserID)
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if membership.Role != RoleMember || membership.CreatedBy != owner.UserID {
		t.Fatalf("unexpected membership %#v", membership)
	}
}

func TestJoinPrivateRoomRequiresRequest(t *testing.T) {
	service, _ := newTestService(t)
	view := mustCreateRoom(t, service, false)
	ctx := context.Background()

	if _, err := service.JoinRoom(ctx, student, view.Room.RoomID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if _, err := service.RequestJoin(ctx, student, view.Room.RoomID); err != nil {
		t.Fatalf("request join: %v", err)
	}
	if _, err := service.RequestJoin(ctx, student, view.Room.RoomID); err != nil {
		t.Fatalf("repeated request join: %v", err)
	}

	asOwner, err := service.GetRoom(ctx, owner, view.Room.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if len(asOwner.JoinRequests) != 1 || asOwner.JoinRequests[0].UserName != "Sam" {
		t.Fatalf("expected one collapsed join request, got %#v", asOwner.JoinRequests)
	}
	asStudent, err := service.GetRoom(ctx, student, view.Room.RoomID)
	if err != nil {
		t.Fatalf("get room as requester: %v", err)
	}
	if len(asStudent.JoinRequests) != 0 {
		t.Fatalf("join requests must be hidden from non-admins")
	}

	if _, err := service.ApproveJoinRequest(ctx, student, view.Room.RoomID, student.UserID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected non-admin approval to be denied, got %v", err)
	}
	approved, err := service.ApproveJoinRequest(ctx, owner, view.Room.RoomID, student.UserID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, ok := approved.Participant(student.UserID); !ok {
		t.Fatalf("expected approved user to be a participant")
	}
	if len(approved.JoinRequests) != 0 {
		t.Fatalf("expected request to be consumed, got %#v", approved.JoinRequests)
	}
}

func TestPrivateRoomStaysPrivate(t *testing.T) {
	service, _ := newTestService(t)
	view := mustCreateRoom(t, service, false)
	ctx := context.Background()

	if view.Room.IsPublic {
		t.Fatalf("created room reported as public")
	}
	stored, err := service.GetRoom(ctx, owner, view.Room.RoomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if stored.Room.IsPublic {
		t.Fatalf("private room was stored as public")
	}
	if len(stored.Participants) != 1 {
		t.Fatalf("expected owner to see participants, got %#v", stored.Participants)
	}

	asOutsider, err := service.GetRoom(ctx, stranger, view.Room.RoomID)
	if err != nil {
		t.Fatalf("get room as outsider: %v", err)
	}
	if len(asOutsider.Participants) != 0 {
		t.Fatalf("outsider must not see private room members, got %#v", asOutsider.Participants)
	}
	if asOutsider.Room.Name != view.Room.Name {
		t.Fatalf("outsider should still see the room name, got %q", asOutsider.Room.Name)
	}

	publicRooms, err := service.ListPublic(ctx, 0)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	for _, listed := range publicRooms {
		if listed.Room.RoomID == view.Room.RoomID {
			t.Fatalf("private room listed as public")
		}
	}
}

func TestRejectJoinRequest(t *testing.T) {
	service, _ := newTestService(t)
	view := mustCreateRoom(t, service, false)
	ctx := context.Background()

	if _, err := service.RequestJoin(ctx, stranger, view.Room.RoomID); err != nil {
		t.Fatalf("request join: %v", err)
	}
	rejected, err := service.RejectJoinRequest(ctx, owner, view.Room.RoomID, stranger.UserID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if len(rejected.JoinRequests) != 0 || len(rejected.Participants) != 1 {
		t.Fatalf("unexpected room after rejection: %#v", rejected)
	}
	if _, err := service.RejectJoinRequest(ctx, owner, view.Room.RoomID, stranger.UserID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for consumed request, got %v", err)
	}
}

func TestCreatorStaysAdmin(t *testing.T) {
	service, _ := newTestService(t)
	view := mustCreateRoom(t, service, true)
	ctx := context.Background()
	if _, err := service.JoinRoom(ctx, student, view.Room.RoomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.UpdateParticipantRole(ctx, owner, view.Room.RoomID, student.UserID, RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}

	_, err := service.UpdateParticipantRole(ctx, student, view.Room.RoomID, owner.UserID, RoleMember)
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected creator demotion to fail, got %v", err)
	}
	if err := service.LeaveRoom(ctx, owner, view.Room.RoomID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected creator leave to fail, got %v", err)
	}
	if err := service.LeaveRoom(ctx, student, view.Room.RoomID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := service.Membership(ctx, view.Room.RoomID, student.UserID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected former member to lose access, got %v", err)
	}
}

func TestUpdateRoomRequiresAdmin(t *testing.T) {
	service, _ := newTestService(t)
	view := mustCreateRoom(t, service, true)
	ctx := context.Background()
	if _, err := service.JoinRoom(ctx, student, view.Room.RoomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	name := "Linear algebra"
	private := false
	if _, err := service.UpdateRoom(ctx, student, view.Room.RoomID, RoomUpdate{Name: &name}); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected member update to be denied, got %v", err)
	}
	updated, err := service.UpdateRoom(ctx, owner, view.Room.RoomID, RoomUpdate{Name: &name, IsPublic: &private})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Room.Name != name || updated.Room.IsPublic {
		t.Fatalf("unexpected updated room %#v", updated.Room)
	}
	public, err := service.ListPublic(ctx, 0)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(public) != 0 {
		t.Fatalf("expected private room to be hidden from public listing")
	}
}

func TestDeleteRoomRunsCascade(t *testing.T) {
	var cascaded []string
	service, publisher := newTestService(t, func(_ *gorm.DB, roomID string) error {
		cascaded = append(cascaded, roomID)
		return nil
	})
	view := mustCreateRoom(t, service, true)
	ctx := context.Background()
	if _, err := service.JoinRoom(ctx, student, view.Room.RoomID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := service.DeleteRoom(ctx, student, view.Room.RoomID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Fatalf("expected member delete to be denied, got %v", err)
	}
	if len(cascaded) != 0 {
		t.Fatalf("cascade must not run for denied deletes")
	}
	if err := service.DeleteRoom(ctx, owner, view.Room.RoomID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(cascaded) != 1 || cascaded[0] != view.Room.RoomID {
		t.Fatalf("unexpected cascade calls %#v", cascaded)
	}
	if _, err := service.GetRoom(ctx, owner, view.Room.RoomID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected deleted room to be gone, got %v", err)
	}
	if publisher.Last().Type != realtime.EventRoomDeleted {
		t.Fatalf("expected room-deleted event, got %#v", publisher.Last())
	}
}

func TestDeleteRoomRollsBackWhenCascadeFails(t *testing.T) {
	service, _ := newTestService(t, func(*gorm.DB, string) error {
		return errors.New("cascade boom")
	})
	view := mustCreateRoom(t, service, true)
	if err := service.DeleteRoom(context.Background(), owner, view.Room.RoomID); err == nil {
		t.Fatalf("expected cascade failure")
	}
	if _, err := service.GetRoom(context.Background(), owner, view.Room.RoomID); err != nil {
		t.Fatalf("room should survive a failed delete: %v", err)
	}
}

func TestListForUser(t *testing.T) {
	service, _ := newTestService(t)
	first := mustCreateRoom(t, service, true)
	mustCreateRoom(t, service, true)
	ctx := context.Background()
	if _, err := service.JoinRoom(ctx, student, first.Room.RoomID); err != nil {
		t.Fatalf("join: %v", err)
	}

	mine, err := service.ListForUser(ctx, student.UserID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 || mine[0].Room.RoomID != first.Room.RoomID {
		t.Fatalf("unexpected rooms %#v", mine)
	}
	ownerRooms, err := service.ListForUser(ctx, owner.UserID)
	if err != nil {
		t.Fatalf("list owner: %v", err)
	}
	if len(ownerRooms) != 2 {
		t.Fatalf("expected two rooms for owner, got %d", len(ownerRooms))
	}
}

func TestMembershipUnknownRoom(t *testing.T) {
	service, _ := newTestService(t)
	if _, err := service.Membership(context.Background(), "MISSING", owner.UserID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMembershipCanModify(t *testing.T) {
	member := Membership{UserID: "a", Role: RoleMember}
	if !member.CanModify("a") || member.CanModify("b") || member.CanModify("") {
		t.Fatalf("unexpected member permissions")
	}
	admin := Membership{UserID: "a", Role: RoleAdmin}
	if !admin.CanModify("b") {
		t.Fatalf("admins may modify any entity")
	}
}

func TestRoomCodeProvider(t *testing.T) {
	code, err := NewRoomCodeProvider().NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(code) != roomCodeLength {
		t.Fatalf("expected %d characters, got %q", roomCodeLength, code)
	}
	if parsed, err := normalizeRoomID(" " + code + " "); err != nil || parsed != code {
		t.Fatalf("expected code to round-trip through normalization, got %q %v", parsed, err)
	}
}
