package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/identity/repo"
	"github.com/Skotchmaster/storefront/internal/identity/transport"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/pkg/apperr"
	"github.com/Skotchmaster/storefront/pkg/events"
	"github.com/Skotchmaster/storefront/pkg/hash"
	jwthelp "github.com/Skotchmaster/storefront/pkg/jwt"
	"github.com/Skotchmaster/storefront/pkg/logging"
	"github.com/Skotchmaster/storefront/pkg/storage"
	"github.com/Skotchmaster/storefront/pkg/tokens"
	"github.com/Skotchmaster/storefront/pkg/util"
	"github.com/Skotchmaster/storefront/pkg/validate"
)

var check = validate.New()

type IdentityService struct {
	Repo   *repo.GormRepo
	Tokens *tokens.Issuer
	Store  storage.Store
	Events events.Publisher
	Now    func() time.Time
}

// Picture is an uploaded profile image.
type Picture struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (s *IdentityService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// CanMutate is the single permission rule for changing a user: yourself, or a non-admin when you are an admin.
func CanMutate(actor models.Actor, target *models.User) bool {
	if actor.ID == target.ID {
		return true
	}
	return actor.IsAdmin() && target.Role != models.RoleAdmin
}

func (s *IdentityService) publish(ctx context.Context, kind string, u *models.User) {
	events.Emit(ctx, s.Events, events.TopicUser, u.ID.String(), map[string]any{
		"type":     kind,
		"userID":   u.ID,
		"username": u.Username,
		"role":     u.Role,
		"status":   u.Status,
	})
}

func (s *IdentityService) Register(ctx context.Context, req transport.RegisterRequest) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "identity.register")

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := check.Validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, "username", req.Username, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, "email", req.Email, uuid.Nil); err != nil {
		return nil, err
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Surname:      strings.TrimSpace(req.Surname),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: pwHash,
		Phone:        strings.TrimSpace(req.Phone),
		Role:         models.RoleClient,
		Status:       models.StatusActive,
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	l.Info("user_registered", "user_id", u.ID, "username", u.Username)
	s.publish(ctx, "user_registered", u)
	return u, nil
}

func (s *IdentityService) ensureFree(ctx context.Context, column, value string, except uuid.UUID) error {
	taken, err := s.Repo.Taken(ctx, column, value, except)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%s %q is already in use: %w", column, value, apperr.ErrConflict)
	}
	return nil
}

// Login accepts an email or a username. Unknown users, wrong passwords and inactive accounts look the same.
func (s *IdentityService) Login(ctx context.Context, identifier, password string) (*models.User, *tokens.Pair, error) {
	l := logging.FromContext(ctx).With("svc", "identity.login")

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, nil, fmt.Errorf("identifier and password are required: %w", apperr.ErrValidation)
	}
	badCredential := fmt.Errorf("invalid credentials: %w", apperr.ErrBadCredential)

	u, err := s.Repo.UserByLogin(ctx, identifier)
	if errors.Is(err, apperr.ErrNotFound) {
		l.Warn("login_failed", "reason", "unknown user")
		return nil, nil, badCredential
	}
	if err != nil {
		return nil, nil, err
	}
	if !hash.CheckPassword(u.PasswordHash, password) {
		l.Warn("login_failed", "reason", "wrong password", "user_id", u.ID)
		return nil, nil, badCredential
	}
	if !u.Status.Active() {
		l.Warn("login_failed", "reason", "inactive account", "user_id", u.ID)
		return nil, nil, badCredential
	}

	pair, err := s.Tokens.Pair(u.ID.String(), string(u.Role))
	if err != nil {
		return nil, nil, err
	}
	if err := s.Repo.StoreRefresh(ctx, refreshRow(u.ID, pair)); err != nil {
		return nil, nil, err
	}

	l.Info("login_success", "user_id", u.ID, "role", u.Role)
	return u, pair, nil
}

func refreshRow(userID uuid.UUID, pair *tokens.Pair) *models.RefreshToken {
	return &models.RefreshToken{
		UserID:    userID,
		Token:     jwthelp.Sha256Hex(pair.RefreshToken),
		JTI:       pair.RefreshJTI,
		ExpiresAt: pair.RefreshExp.UTC(),
	}
}

// Refresh rotates refreshToken into a new pair; the old token cannot be used again.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	l := logging.FromContext(ctx).With("svc", "identity.refresh")
	unauthorized := fmt.Errorf("refresh token rejected: %w", apperr.ErrUnauthorized)

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.Tokens.RefreshSecret)
	if err != nil {
		l.Warn("refresh_failed", "reason", "invalid token", "error", err)
		return nil, unauthorized
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, unauthorized
	}
	u, err := s.Repo.GetUser(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, unauthorized
	}
	if err != nil {
		return nil, err
	}
	if !u.Status.Active() {
		l.Warn("refresh_failed", "reason", "inactive account", "user_id", u.ID)
		return nil, unauthorized
	}

	pair, err := s.Tokens.Pair(u.ID.String(), string(u.Role))
	if err != nil {
		return nil, err
	}
	if err := s.Repo.RotateRefresh(ctx, claims.ID, refreshToken, s.now(), refreshRow(u.ID, pair)); err != nil {
		l.Warn("refresh_failed", "reason", apperr.Kind(err), "user_id", u.ID, "error", err)
		return nil, err
	}
	l.Info("refresh_success", "user_id", u.ID)
	return pair, nil
}

func (s *IdentityService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.Repo.RevokeRefresh(ctx, refreshToken)
}

func (s *IdentityService) Me(ctx context.Context, actor models.Actor) (*models.User, error) {
	return s.Repo.GetUser(ctx, actor.ID)
}

func (s *IdentityService) ListUsers(ctx context.Context, page, size int) (*util.Page[models.User], error) {
	offset, limit, page := util.Calculate(page, size)
	total, users, err := s.Repo.ListActiveUsers(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return &util.Page[models.User]{Data: users, Meta: util.NewMeta(page, limit, total)}, nil
}

// target loads the user named username (the actor when empty) and applies CanMutate.
func (s *IdentityService) target(ctx context.Context, actor models.Actor, username string) (*models.User, error) {
	var (
		u   *models.User
		err error
	)
	if username = strings.TrimSpace(username); username == "" {
		u, err = s.Repo.GetUser(ctx, actor.ID)
	} else {
		u, err = s.Repo.UserByUsername(ctx, username)
	}
	if err != nil {
		return nil, err
	}
	if !CanMutate(actor, u) {
		return nil, fmt.Errorf("cannot change user %q: %w", u.Username, apperr.ErrForbidden)
	}
	return u, nil
}

func (s *IdentityService) ChangePassword(ctx context.Context, actor models.Actor, username, oldPassword, newPassword string) error {
	l := logging.FromContext(ctx).With("svc", "identity.change_password", "actor_id", actor.ID)

	u, err := s.target(ctx, actor, username)
	if err != nil {
		return err
	}
	if oldPassword == "" {
		return fmt.Errorf("current password is required: %w", apperr.ErrValidation)
	}
	if !validate.StrongPassword(newPassword) {
		return fmt.Errorf("new password must have 8+ characters with lower, upper, digit and symbol: %w", apperr.ErrValidation)
	}
	if !hash.CheckPassword(u.PasswordHash, oldPassword) {
		return fmt.Errorf("current password is incorrect: %w", apperr.ErrBadCredential)
	}
	if hash.CheckPassword(u.PasswordHash, newPassword) {
		return fmt.Errorf("new password must differ from the current one: %w", apperr.ErrSamePassword)
	}

	pwHash, err := hash.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Repo.SetPassword(ctx, u.ID, pwHash); err != nil {
		return err
	}
	l.Info("password_changed", "user_id", u.ID)
	s.publish(ctx, "password_changed", u)
	return nil
}

// DeactivateUser is a soft delete confirmed with the target's password.
func (s *IdentityService) DeactivateUser(ctx context.Context, actor models.Actor, username, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "identity.deactivate", "actor_id", actor.ID)

	u, err := s.target(ctx, actor, username)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("password is required: %w", apperr.ErrValidation)
	}
	if !hash.CheckPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("password is incorrect: %w", apperr.ErrBadCredential)
	}
	if err := s.Repo.Deactivate(ctx, u.ID); err != nil {
		if errors.Is(err, apperr.ErrAlreadyInactive) {
			return nil, fmt.Errorf("user %q: %w", u.Username, apperr.ErrAlreadyInactive)
		}
		return nil, err
	}
	u.Status = models.StatusInactive

	l.Info("user_deactivated", "user_id", u.ID)
	s.publish(ctx, "user_deactivated", u)
	return u, nil
}

func (s *IdentityService) UpdateProfile(ctx context.Context, actor models.Actor, req transport.UpdateProfileRequest) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "identity.update_profile", "actor_id", actor.ID)

	u, err := s.target(ctx, actor, req.Target)
	if err != nil {
		return nil, err
	}
	if req.Role != nil && !actor.IsAdmin() && models.Role(*req.Role) != models.RoleClient {
		return nil, fmt.Errorf("only %s can be assigned: %w", models.RoleClient, apperr.ErrRoleEscalation)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		req.Username = &name
	}
	if err := check.Validate(req); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if req.Role != nil {
		role := models.Role(*req.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q: %w", *req.Role, apperr.ErrValidation)
		}
		fields["role"] = role
	}
	if req.Username != nil && *req.Username != u.Username {
		if err := s.ensureFree(ctx, "username", *req.Username, u.ID); err != nil {
			return nil, err
		}
		fields["username"] = *req.Username
	}
	if req.Email != nil && *req.Email != u.Email {
		if err := s.ensureFree(ctx, "email", *req.Email, u.ID); err != nil {
			return nil, err
		}
		fields["email"] = *req.Email
	}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Surname != nil {
		fields["surname"] = strings.TrimSpace(*req.Surname)
	}
	if req.Phone != nil {
		fields["phone"] = strings.TrimSpace(*req.Phone)
	}

	if err := s.Repo.UpdateUser(ctx, u.ID, fields); err != nil {
		return nil, err
	}
	updated, err := s.Repo.GetUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	l.Info("user_updated", "user_id", u.ID, "fields", len(fields))
	s.publish(ctx, "user_updated", updated)
	return updated, nil
}

// PictureKey is where a profile picture with the given file name is stored.
func PictureKey(userID uuid.UUID, filename string) string {
	return fmt.Sprintf("profile-pictures/%s/%s%s", userID, uuid.NewString(), strings.ToLower(path.Ext(filename)))
}

// UpdateProfilePicture stores pic for the actor and removes the picture it replaces.
func (s *IdentityService) UpdateProfilePicture(ctx context.Context, actor models.Actor, pic Picture) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "identity.update_picture", "user_id", actor.ID)

	if pic.Body == nil {
		return nil, fmt.Errorf("no file in the request: %w", apperr.ErrValidation)
	}
	if !strings.HasPrefix(pic.ContentType, "image/") {
		return nil, fmt.Errorf("content type %q is not an image: %w", pic.ContentType, apperr.ErrValidation)
	}
	if s.Store == nil {
		return nil, errors.New("no picture storage configured")
	}

	u, err := s.Repo.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	key := PictureKey(u.ID, pic.Filename)
	if err := s.Store.Put(ctx, key, pic.Body, pic.Size, pic.ContentType); err != nil {
		return nil, fmt.Errorf("store picture: %w", err)
	}
	if err := s.Repo.UpdateUser(ctx, u.ID, map[string]any{"profile_picture": key}); err != nil {
		return nil, err
	}
	if old := u.ProfilePicture; old != "" {
		if err := s.Store.Delete(ctx, old); err != nil {
			l.Warn("old_picture_not_removed", "key", old, "error", err)
		}
	}
	u.ProfilePicture = key

	l.Info("picture_updated", "key", key)
	s.publish(ctx, "user_updated", u)
	return u, nil
}
