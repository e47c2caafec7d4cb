package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"easy-canvas-go/internal/model"
	"easy-canvas-go/internal/repository"
	"easy-canvas-go/pkg/canvas"
	"easy-canvas-go/pkg/log"
	"easy-canvas-go/pkg/secret"
	"easy-canvas-go/pkg/tasks"
)

// UserService 接口定义了所有与用户设置相关的业务操作。
type UserService interface {
	SaveSettings(ctx context.Context, uid string, req model.UserSettingsRequest) (*model.UserProfile, error)
	GetSettings(ctx context.Context, uid string) (*model.UserProfile, error)
	UpdateSettings(ctx context.Context, uid string, upd model.UserSettingsUpdate) (*model.UserProfile, error)
	DeleteSettings(ctx context.Context, uid string) error
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	courseRepo repository.CourseRepository
	planRepo   repository.PlanRepository
	chatRepo   repository.ChatRepository
	dialer     canvas.Dialer
	cipher     *secret.Cipher
	publisher  tasks.Publisher
	now        func() time.Time
}

// NewUserService 创建一个新的 UserService 实例。publisher 为 nil 时保存设置后不会触发课程刷新。
func NewUserService(
	userRepo repository.UserRepository,
	courseRepo repository.CourseRepository,
	planRepo repository.PlanRepository,
	chatRepo repository.ChatRepository,
	dialer canvas.Dialer,
	cipher *secret.Cipher,
	publisher tasks.Publisher,
) UserService {
	return &userService{
		userRepo:   userRepo,
		courseRepo: courseRepo,
		planRepo:   planRepo,
		chatRepo:   chatRepo,
		dialer:     dialer,
		cipher:     cipher,
		publisher:  publisher,
		now:        time.Now,
	}
}

// SaveSettings 校验 Canvas 凭证，加密 token 后保存用户文档。
func (s *userService) SaveSettings(ctx context.Context, uid string, req model.UserSettingsRequest) (*model.UserProfile, error) {
	baseURL, token, err := normalizeCredentials(req.CanvasURL, req.APIToken)
	if err != nil {
		return nil, err
	}

	canvasUser, err := s.validate(ctx, baseURL, token)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(token)
	if err != nil {
		return nil, fmt.Errorf("encrypt api token: %w", err)
	}

	user := &model.User{
		CanvasURL: baseURL,
		APIToken:  encrypted,
		UpdatedAt: s.now().UTC(),
	}
	applyCanvasUser(user, canvasUser)
	if err := s.userRepo.Save(ctx, uid, user); err != nil {
		return nil, fmt.Errorf("save user settings: %w", err)
	}
	log.Infof("[UserService] 用户 %s 保存 Canvas 设置成功, canvas_user_id: %d", uid, user.CanvasUserID)

	s.enqueueRefresh(ctx, uid, "settings_saved")
	profile := user.Profile()
	return &profile, nil
}

func (s *userService) GetSettings(ctx context.Context, uid string) (*model.UserProfile, error) {
	user, err := s.getUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// UpdateSettings 部分更新用户设置，Canvas 地址或 token 变化时重新校验。
func (s *userService) UpdateSettings(ctx context.Context, uid string, upd model.UserSettingsUpdate) (*model.UserProfile, error) {
	user, err := s.getUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	credsChanged := false
	if upd.CanvasURL != nil || upd.APIToken != nil {
		rawURL := user.CanvasURL
		if upd.CanvasURL != nil {
			rawURL = *upd.CanvasURL
		}
		var token string
		if upd.APIToken != nil {
			token = *upd.APIToken
		} else {
			token, err = s.cipher.Decrypt(user.APIToken)
			if err != nil {
				return nil, fmt.Errorf("decrypt api token: %w", err)
			}
		}

		baseURL, token, err := normalizeCredentials(rawURL, token)
		if err != nil {
			return nil, err
		}
		canvasUser, err := s.validate(ctx, baseURL, token)
		if err != nil {
			return nil, err
		}
		encrypted, err := s.cipher.Encrypt(token)
		if err != nil {
			return nil, fmt.Errorf("encrypt api token: %w", err)
		}
		credsChanged = baseURL != user.CanvasURL || upd.APIToken != nil
		user.CanvasURL = baseURL
		user.APIToken = encrypted
		applyCanvasUser(user, canvasUser)
	}

	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.userRepo.Save(ctx, uid, user); err != nil {
		return nil, fmt.Errorf("update user settings: %w", err)
	}
	if credsChanged {
		s.enqueueRefresh(ctx, uid, "credentials_updated")
	}
	profile := user.Profile()
	return &profile, nil
}

// DeleteSettings 删除用户文档，并级联删除课程快照、计划缓存和所有对话。
func (s *userService) DeleteSettings(ctx context.Context, uid string) error {
	if _, err := s.getUser(ctx, uid); err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, uid); err != nil {
		return fmt.Errorf("delete user settings: %w", err)
	}

	if err := s.courseRepo.Delete(ctx, uid); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[UserService] 删除课程快照失败, uid: %s, error: %v", uid, err)
	}
	if err := s.planRepo.Delete(ctx, uid); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warnf("[UserService] 删除计划缓存失败, uid: %s, error: %v", uid, err)
	}
	chats, err := s.chatRepo.ListChats(ctx, uid)
	if err != nil {
		log.Warnf("[UserService] 列出对话失败, uid: %s, error: %v", uid, err)
		return nil
	}
	for _, c := range chats {
		if err := s.chatRepo.DeleteChat(ctx, c.ChatID); err != nil {
			log.Warnf("[UserService] 删除对话失败, chatID: %s, error: %v", c.ChatID, err)
		}
	}
	log.Infof("[UserService] 用户 %s 的设置已删除, 对话数: %d", uid, len(chats))
	return nil
}

func (s *userService) getUser(ctx context.Context, uid string) (*model.User, error) {
	user, err := s.userRepo.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) validate(ctx context.Context, baseURL, token string) (*model.CanvasUser, error) {
	client, err := s.dialer.Dial(baseURL, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	canvasUser, err := client.CurrentUser(ctx)
	if err != nil {
		log.Warnf("[UserService] Canvas 凭证校验失败, url: %s, error: %v", baseURL, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidCanvasCredentials, err)
	}
	return canvasUser, nil
}

func (s *userService) enqueueRefresh(ctx context.Context, uid, reason string) {
	if s.publisher == nil {
		return
	}
	task := tasks.CourseRefreshTask{UserID: uid, Reason: reason, RequestedAt: s.now().UTC()}
	if err := s.publisher.PublishCourseRefresh(ctx, task); err != nil {
		log.Errorf("[UserService] 投递课程刷新任务失败, uid: %s, error: %v", uid, err)
	}
}

func normalizeCredentials(rawURL, token string) (string, string, error) {
	token = strings.TrimSpace(token)
	if strings.TrimSpace(rawURL) == "" || token == "" {
		return "", "", fmt.Errorf("%w: canvasUrl and apiToken are required", ErrBadRequest)
	}
	baseURL, err := canvas.NormalizeBaseURL(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return baseURL, token, nil
}

func applyCanvasUser(user *model.User, cu *model.CanvasUser) {
	user.CanvasUserID = cu.ID
	user.Name = cu.Name
	user.FirstName = cu.FirstName
	user.LastName = cu.LastName
	user.AvatarURL = cu.AvatarURL
	user.Email = cu.Email
}
