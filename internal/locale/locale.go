// Package locale renders workflow errors as short messages for moderators.
// Raw store and transport errors are never shown; anything unrecognized
// becomes a generic failure message.
package locale

import (
	"errors"

	"github.com/dokkuadmin/banflow/internal/authz"
	"github.com/dokkuadmin/banflow/internal/database/types"
	"github.com/dokkuadmin/banflow/internal/gateway"
	"github.com/dokkuadmin/banflow/internal/workflow"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	keySuccess          = "success"
	keyPermissionDenied = "permission_denied"
	keyReportNotFound   = "report_not_found"
	keyTicketNotFound   = "ticket_not_found"
	keyPlayerNotFound   = "player_not_found"
	keyActorNotFound    = "actor_not_found"
	keyInvalidInput     = "invalid_input"
	keyTicketsBusy      = "tickets_busy"
	keyEnforcement      = "enforcement_failed"
	keyGatewayOff       = "gateway_not_configured"
	keyPartialCommit    = "partial_commit"
	keyInternal         = "internal"
)

var messages = map[language.Tag]map[string]string{ //nolint:gochecknoglobals // -
	language.Korean: {
		keySuccess:          "처리되었습니다.",
		keyPermissionDenied: "권한이 없습니다.",
		keyReportNotFound:   "신고 내역을 찾을 수 없습니다.",
		keyTicketNotFound:   "차단 요청을 찾을 수 없습니다.",
		keyPlayerNotFound:   "유저를 찾을 수 없습니다.",
		keyActorNotFound:    "계정을 찾을 수 없습니다.",
		keyInvalidInput:     "입력값이 올바르지 않습니다.",
		keyTicketsBusy:      "다른 관리자가 처리 중입니다. 잠시 후 다시 시도해 주세요.",
		keyEnforcement:      "게임 서버에 차단을 적용하지 못했습니다.",
		keyGatewayOff:       "게임 서버 연동이 설정되지 않았습니다.",
		keyPartialCommit:    "차단은 적용되었으나 기록 저장에 실패했습니다. 자동으로 복구됩니다.",
		keyInternal:         "처리 중 오류가 발생했습니다.",
	},
	language.English: {
		keySuccess:          "Done.",
		keyPermissionDenied: "You do not have permission to do that.",
		keyReportNotFound:   "Report not found.",
		keyTicketNotFound:   "Block request not found.",
		keyPlayerNotFound:   "Player not found.",
		keyActorNotFound:    "Account not found.",
		keyInvalidInput:     "Some of the input is invalid.",
		keyTicketsBusy:      "Another moderator is handling this. Try again shortly.",
		keyEnforcement:      "The game server did not apply the ban.",
		keyGatewayOff:       "The game server connection is not configured.",
		keyPartialCommit:    "The ban was applied but its record was not saved. It will be repaired automatically.",
		keyInternal:         "Something went wrong.",
	},
}

// supported lists the catalog languages. The first entry is the default.
var supported = []language.Tag{language.Korean, language.English} //nolint:gochecknoglobals // -

var matcher = language.NewMatcher(supported) //nolint:gochecknoglobals // -

// Localizer renders messages in one language.
type Localizer struct {
	printer *message.Printer
}

// New creates a Localizer for a BCP 47 tag such as "ko" or "en".
// Unknown or unsupported tags fall back to Korean.
func New(tag string) *Localizer {
	builder := catalog.NewBuilder(catalog.Fallback(language.Korean))
	for lang, entries := range messages {
		for key, msg := range entries {
			_ = builder.SetString(lang, key, msg)
		}
	}

	parsed, _ := language.Parse(tag) // an unparsable tag matches the fallback
	_, index, _ := matcher.Match(parsed)

	return &Localizer{printer: message.NewPrinter(supported[index], message.Catalog(builder))}
}

// Message returns the text shown to a moderator for err. A nil error
// renders as success.
func (l *Localizer) Message(err error) string {
	return l.printer.Sprintf(key(err))
}

func key(err error) string {
	switch {
	case err == nil:
		return keySuccess
	case errors.Is(err, authz.ErrPermissionDenied):
		return keyPermissionDenied
	// Partial commits wrap the underlying store error, so they go first
	case errors.Is(err, workflow.ErrPartialCommit):
		return keyPartialCommit
	case errors.Is(err, gateway.ErrNotConfigured):
		return keyGatewayOff
	case errors.Is(err, workflow.ErrEnforcementFailed):
		return keyEnforcement
	case errors.Is(err, workflow.ErrTicketsBusy):
		return keyTicketsBusy
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, types.ErrInvalidBanDuration):
		return keyInvalidInput
	case errors.Is(err, types.ErrReportNotFound):
		return keyReportNotFound
	case errors.Is(err, types.ErrTicketNotFound):
		return keyTicketNotFound
	case errors.Is(err, types.ErrPlayerNotFound):
		return keyPlayerNotFound
	case errors.Is(err, types.ErrActorNotFound):
		return keyActorNotFound
	default:
		return keyInternal
	}
}
