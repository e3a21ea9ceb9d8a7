// Package policy decides who may do what.
//
// Every decision is a pure function of the actor and the target. Rules are
// kept in a single table; anything the table does not explicitly allow is
// denied.
package policy

import (
	"context"

	"github.com/mbolis/quick-forms/model"
)

// Actor is the identity behind a request. A nil *Actor is an anonymous caller.
type Actor struct {
	AccountID int64
	Username  string
	Role      model.Role
	Staff     bool
	Active    bool
}

func ActorOf(a model.Account) *Actor {
	return &Actor{
		AccountID: a.ID,
		Username:  a.Username,
		Role:      a.Role,
		Staff:     a.Staff,
		Active:    a.Active,
	}
}

func (a *Actor) authenticated() bool {
	return a != nil && a.Active && a.Role.Valid()
}

func (a *Actor) isAdmin() bool {
	return a.authenticated() && a.Role == model.RoleAdmin
}

func (a *Actor) owns(f *model.Form) bool {
	return a.authenticated() && f != nil && f.OwnerID == a.AccountID
}

type Action int

const (
	CreateForm Action = iota + 1
	ViewForm
	ListForms
	DeleteForm
	SubmitResponse
	ViewResponses
	ManageAccounts
)

var actionNames = map[Action]string{
	CreateForm:     "create_form",
	ViewForm:       "view_form",
	ListForms:      "list_forms",
	DeleteForm:     "delete_form",
	SubmitResponse: "submit_response",
	ViewResponses:  "view_responses",
	ManageAccounts: "manage_accounts",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

type rule func(actor *Actor, form *model.Form) bool

func anyone(*Actor, *model.Form) bool { return true }

func formExists(_ *Actor, f *model.Form) bool { return f != nil }

func facultyOrAdmin(a *Actor, _ *model.Form) bool {
	if !a.authenticated() {
		return false
	}
	switch a.Role {
	case model.RoleFaculty, model.RoleAdmin:
		return true
	}
	return false
}

func adminOnly(a *Actor, _ *model.Form) bool { return a.isAdmin() }

func adminOrOwner(a *Actor, f *model.Form) bool {
	return f != nil && (a.isAdmin() || a.owns(f))
}

func staffAdminOrOwner(a *Actor, f *model.Form) bool {
	if f == nil || !a.authenticated() {
		return false
	}
	return a.Staff || a.isAdmin() || a.owns(f)
}

func all(rules ...rule) rule {
	return func(a *Actor, f *model.Form) bool {
		for _, r := range rules {
			if !r(a, f) {
				return false
			}
		}
		return true
	}
}

var table = map[Action]rule{
	CreateForm:     facultyOrAdmin,
	ViewForm:       all(anyone, formExists),
	ListForms:      facultyOrAdmin,
	DeleteForm:     adminOrOwner,
	SubmitResponse: all(anyone, formExists),
	ViewResponses:  staffAdminOrOwner,
	ManageAccounts: adminOnly,
}

// Allowed evaluates action for actor against form. form may be nil for
// actions that have no target.
func Allowed(action Action, actor *Actor, form *model.Form) bool {
	r, ok := table[action]
	if !ok {
		return false
	}
	return r(actor, form)
}

func CanCreateForm(actor *Actor) bool {
	return Allowed(CreateForm, actor, nil)
}

// CanViewForm covers the public shape of a form only, never its responses.
func CanViewForm(actor *Actor, form *model.Form) bool {
	return Allowed(ViewForm, actor, form)
}

func CanSubmitResponse(actor *Actor, form *model.Form) bool {
	return Allowed(SubmitResponse, actor, form)
}

func CanViewResponses(actor *Actor, form *model.Form) bool {
	return Allowed(ViewResponses, actor, form)
}

func CanManageAccounts(actor *Actor) bool {
	return Allowed(ManageAccounts, actor, nil)
}

func CanDeleteForm(actor *Actor, form *model.Form) bool {
	return Allowed(DeleteForm, actor, form)
}

func CanListForms(actor *Actor) bool {
	return Allowed(ListForms, actor, nil)
}

// ListScope tells which forms actor may list: every form, or only the
// ones owned by ownerID. ok is false when actor may list nothing.
func ListScope(actor *Actor) (everything bool, ownerID int64, ok bool) {
	if !CanListForms(actor) {
		return false, 0, false
	}
	if actor.isAdmin() {
		return true, 0, true
	}
	return false, actor.AccountID, true
}

type actorKey struct{}

func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored in ctx, or nil for anonymous requests.
func ActorFrom(ctx context.Context) *Actor {
	a, _ := ctx.Value(actorKey{}).(*Actor)
	return a
}
