package access_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/custody/access"
)

func TestStaticAdmins(t *testing.T) {
	ctx := context.Background()
	a := access.NewStatic("0xADMIN")

	assert.True(t, a.IsAuthorizedAdmin(ctx, "0xadmin"))
	assert.False(t, a.IsAuthorizedAdmin(ctx, "0xother"))

	a.Grant("0xother")
	assert.True(t, a.IsAuthorizedAdmin(ctx, "0xOTHER"))

	a.Revoke("0xadmin")
	assert.False(t, a.IsAuthorizedAdmin(ctx, "0xadmin"))
}

func TestStaticPause(t *testing.T) {
	ctx := context.Background()
	a := access.NewStatic()

	assert.False(t, a.IsPaused(ctx))
	a.Pause()
	assert.True(t, a.IsPaused(ctx))
	a.Unpause()
	assert.False(t, a.IsPaused(ctx))
}
