package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusBadgeClass(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"pending", BadgeWarning},
		{"approved", BadgeSuccess},
		{"accepted", BadgeSuccess},
		{"commenced", BadgeSuccess},
		{"rejected", BadgeDanger},
		{"cancelled", BadgeDanger},
		{"under_review", BadgeInfo},
		{"submitted", BadgeInfo},
		{"draft", BadgeSecondary},
		{"", BadgeSecondary},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusBadgeClass(tt.status))
		})
	}

	t.Run("StatusBadges returns a copy", func(t *testing.T) {
		badges := StatusBadges()
		badges["pending"] = "mutated"
		assert.Equal(t, BadgeWarning, StatusBadgeClass("pending"))
	})
}

func TestRequestableRole(t *testing.T) {
	role, ok := RequestableRole("foreman")
	assert.True(t, ok)
	assert.Equal(t, RoleForeman, role)

	role, ok = RequestableRole(string(RoleSubscriber))
	assert.True(t, ok)
	assert.Equal(t, RoleSubscriber, role)

	for _, name := range []string{"admin", string(RoleAdmin), string(RoleSystem), ""} {
		_, ok := RequestableRole(name)
		assert.False(t, ok, name)
	}
}

func TestRolePermissions(t *testing.T) {
	t.Run("only admins review", func(t *testing.T) {
		for _, p := range []Permission{PermissionReviewAccessRequest, PermissionReviewDocument, PermissionReviewReport, PermissionActWorkflow} {
			assert.True(t, RoleAdmin.HasPermission(p), p)
			assert.False(t, RoleForeman.HasPermission(p), p)
			assert.False(t, RoleSubscriber.HasPermission(p), p)
		}
	})

	t.Run("foremen run schemes", func(t *testing.T) {
		assert.True(t, RoleForeman.HasPermission(PermissionCreateScheme))
		assert.True(t, RoleForeman.HasPermission(PermissionSubmitReport))
		assert.False(t, RoleAdmin.HasPermission(PermissionCreateScheme))
	})

	t.Run("unknown role has nothing", func(t *testing.T) {
		assert.False(t, Role("ChitFund_Auditor").IsValid())
		assert.False(t, Role("ChitFund_Auditor").HasPermission(PermissionReadScheme))
	})

	t.Run("actor types", func(t *testing.T) {
		assert.Equal(t, ActorTypeForeman, RoleForeman.ActorType())
		assert.Equal(t, ActorTypeSubscriber, Role("").ActorType())
	})
}

func TestParseAuthorizationMode(t *testing.T) {
	mode, ok := ParseAuthorizationMode("fail_open_admin")
	assert.True(t, ok)
	assert.Equal(t, AuthorizationModeFailOpenAdmin, mode)

	_, ok = ParseAuthorizationMode("fail_open")
	assert.False(t, ok)
}

func TestCertificateType_NumberPrefix(t *testing.T) {
	assert.Equal(t, "PSO", CertificateTypePSO.NumberPrefix())
	assert.Equal(t, "F7", CertificateTypeForm7.NumberPrefix())
	assert.Equal(t, "CERT", CertificateType("other").NumberPrefix())
}

func TestWorkflowAction_IsReviewAction(t *testing.T) {
	assert.True(t, WorkflowActionApprove.IsReviewAction())
	assert.True(t, WorkflowActionRequestChanges.IsReviewAction())
	assert.False(t, WorkflowActionSubmit.IsReviewAction())
}

func TestStringList(t *testing.T) {
	t.Run("Value of nil is an empty array", func(t *testing.T) {
		v, err := StringList(nil).Value()
		require.NoError(t, err)
		assert.Equal(t, "[]", v)
	})

	t.Run("Scan accepts bytes, strings and NULL", func(t *testing.T) {
		var sl StringList
		require.NoError(t, sl.Scan([]byte(`["UCF1","UCF2"]`)))
		assert.Equal(t, StringList{"UCF1", "UCF2"}, sl)

		require.NoError(t, sl.Scan(`["UCF3"]`))
		assert.True(t, sl.Contains("UCF3"))

		require.NoError(t, sl.Scan(nil))
		assert.Empty(t, sl)

		assert.Error(t, sl.Scan(42))
	})
}

func TestFlexibleStringSlice(t *testing.T) {
	var f FlexibleStringSlice
	require.NoError(t, json.Unmarshal([]byte(`"ChitFund_Admin"`), &f))
	assert.Equal(t, []string{"ChitFund_Admin"}, f.ToStringSlice())

	require.NoError(t, json.Unmarshal([]byte(`["ChitFund_Foreman","ChitFund_Subscriber"]`), &f))
	assert.Len(t, f, 2)

	assert.Error(t, json.Unmarshal([]byte(`""`), &f))
	assert.Error(t, json.Unmarshal([]byte(`"`+strings.Repeat("a", 2000)+`"`), &f))
	assert.Error(t, json.Unmarshal([]byte(`42`), &f))
}

func TestBaseModelHooks(t *testing.T) {
	t.Run("create stamps UTC microsecond timestamps", func(t *testing.T) {
		var b BaseModel
		require.NoError(t, b.BeforeCreate(nil))
		assert.Equal(t, time.UTC, b.CreatedAt.Location())
		assert.Equal(t, 0, b.CreatedAt.Nanosecond()%1000)
		assert.Equal(t, b.CreatedAt, b.UpdatedAt)
	})

	t.Run("create keeps an explicit CreatedAt", func(t *testing.T) {
		created := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		b := BaseModel{CreatedAt: created}
		require.NoError(t, b.BeforeCreate(nil))
		assert.Equal(t, created, b.CreatedAt)
		assert.True(t, b.UpdatedAt.After(created))
	})

	t.Run("update refreshes UpdatedAt", func(t *testing.T) {
		old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		b := BaseModel{CreatedAt: old, UpdatedAt: old}
		require.NoError(t, b.BeforeUpdate(nil))
		assert.Equal(t, old, b.CreatedAt)
		assert.True(t, b.UpdatedAt.After(old))
	})
}
