package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ProcessEvent(context.Context, *Event) (Result, error)
	GetAccess(context.Context, snowflake.ID) (AccessStatus, error)
}
