// Package discord reads and assigns the access role in a Discord guild.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	"argus/internal/provider"
	"argus/pkg/domain"
	"argus/pkg/platform/circuit"
)

const (
	providerID     = "discord"
	defaultTimeout = 5 * time.Second
)

// guildAPI is the slice of *discordgo.Session the client uses.
type guildAPI interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

type Config struct {
	BotToken string
	GuildID  string
	RoleID   string
	Timeout  time.Duration
}

type Client struct {
	api     guildAPI
	guildID string
	roleID  string
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func withAPI(api guildAPI) Option {
	return func(c *Client) {
		c.api = api
	}
}

// New opens a REST-only bot session. No gateway connection is made.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.GuildID == "" || cfg.RoleID == "" {
		return nil, fmt.Errorf("discord guild id and role id are required")
	}
	c := &Client{
		guildID: cfg.GuildID,
		roleID:  cfg.RoleID,
		timeout: cfg.Timeout,
		logger:  slog.Default(),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New(providerID,
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2),
			circuit.WithCooldown(30*time.Second),
		)
	}
	if c.api == nil {
		if cfg.BotToken == "" {
			return nil, fmt.Errorf("discord bot token is required")
		}
		session, err := discordgo.New("Bot " + cfg.BotToken)
		if err != nil {
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		// The reconcile worker owns retries.
		session.MaxRestRetries = 0
		session.Client = &http.Client{Timeout: c.timeout}
		c.api = session
	}
	return c, nil
}

// CurrentRoleState reports guild membership and the access role. A member
// that is not in the guild is a successful answer, not an error.
func (c *Client) CurrentRoleState(ctx context.Context, player domain.PlayerID) (provider.RoleState, error) {
	var state provider.RoleState
	err := c.call(ctx, "guild member", func(ctx context.Context) error {
		member, err := c.api.GuildMember(c.guildID, player.String(), discordgo.WithContext(ctx))
		if err != nil {
			if isUnknownMember(err) {
				state = provider.RoleState{}
				return nil
			}
			return err
		}
		state = provider.RoleState{InGuild: true, HasAccessRole: slices.Contains(member.Roles, c.roleID)}
		return nil
	})
	return state, err
}

func (c *Client) GrantRole(ctx context.Context, player domain.PlayerID) error {
	return c.call(ctx, "grant role", func(ctx context.Context) error {
		return c.api.GuildMemberRoleAdd(c.guildID, player.String(), c.roleID, discordgo.WithContext(ctx))
	})
}

func (c *Client) RevokeRole(ctx context.Context, player domain.PlayerID) error {
	return c.call(ctx, "revoke role", func(ctx context.Context) error {
		err := c.api.GuildMemberRoleRemove(c.guildID, player.String(), c.roleID, discordgo.WithContext(ctx))
		if isUnknownMember(err) {
			return nil
		}
		return err
	})
}

// call runs fn under the client timeout and the circuit breaker, normalizing
// failures into provider errors.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if !c.breaker.Allow() {
		return provider.NewProviderError(provider.ErrorProviderOutage, providerID, op+": circuit open", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "discord circuit closed")
		}
		return nil
	}

	perr := classify(ctx, op, err)
	if perr.Category != provider.ErrorBadData {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "discord circuit opened", "error", perr)
		}
	}
	return perr
}

func classify(ctx context.Context, op string, err error) *provider.ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return provider.NewProviderError(provider.ErrorTimeout, providerID, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return provider.NewProviderError(provider.ErrorTimeout, providerID, op, err)
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch code := restErr.Response.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return provider.NewProviderError(provider.ErrorAuthentication, providerID, op, err)
		case code == http.StatusTooManyRequests:
			return provider.NewProviderError(provider.ErrorRateLimited, providerID, op, err)
		case code >= 500:
			return provider.NewProviderError(provider.ErrorProviderOutage, providerID, op, err)
		default:
			return provider.NewProviderError(provider.ErrorBadData, providerID, op, err)
		}
	}
	return provider.NewProviderError(provider.ErrorProviderOutage, providerID, op, err)
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMember {
		return true
	}
	return false
}
