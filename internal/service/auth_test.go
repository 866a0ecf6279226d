package service_test // 测试包

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/repository"
	"github.com/SwiftAkira/SpeedLink/internal/repository/mocks"
	"github.com/SwiftAkira/SpeedLink/internal/service"
)

// --- 测试 Register 方法 ---

func TestAuthService_Register_Success(t *testing.T) {
	// Arrange: 准备 Mock 对象, Service 实例, 和测试数据
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err, "创建 AuthService 不应失败")

	ctx := context.Background()
	email := "rider@example.com"
	password := "StrongPass123"

	mockUserRepo.On("Create", ctx, mock.MatchedBy(func(user *domain.User) bool {
		assert.Equal(t, email, user.Email)
		assert.Equal(t, domain.VehicleMotorcycle, user.VehicleType, "非法车辆类型应回落到默认值")
		assert.Equal(t, "rider", user.DisplayName, "昵称缺省时取邮箱前缀")
		return true
	})).
		Run(func(args mock.Arguments) { // 模拟数据库填充字段
			userArg := args.Get(1).(*domain.User)
			// 验证密码是否已哈希（在调用时检查，Register 返回前会清空该字段）
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(userArg.Password), []byte(password)), "密码应被正确哈希")
			userArg.ID = 5
			userArg.CreatedAt = time.Now().Add(-time.Second)
		}).
		Return(nil).
		Once()

	// Act
	registeredUser, err := authService.Register(ctx, email, password, "", "spaceship")

	// Assert
	assert.NoError(t, err, "成功注册时不应有错误")
	require.NotNil(t, registeredUser, "成功注册时应返回用户对象")
	assert.Equal(t, uint(5), registeredUser.ID)
	assert.Empty(t, registeredUser.Password, "返回的用户密码应为空")

	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_EmailTaken(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()
	mockUserRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(repository.ErrDuplicateEntry).
		Once()

	// Act
	registeredUser, err := authService.Register(ctx, "dup@example.com", "StrongPass123", "Dup", domain.VehicleCar)

	// Assert: 唯一索引冲突应映射为业务错误
	assert.ErrorIs(t, err, service.ErrRegistrationFailed)
	assert.Nil(t, registeredUser)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_InvalidInput(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	_, err = authService.Register(context.Background(), "", "pass", "", "")
	assert.ErrorIs(t, err, service.ErrInvalidInput, "缺少邮箱应返回输入错误")

	_, err = authService.Register(context.Background(), "not-an-email", "pass", "", "")
	assert.ErrorIs(t, err, service.ErrInvalidInput, "非法邮箱格式应返回输入错误")

	// 仓库不应被触碰
	mockUserRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- 测试 Login 方法 ---

func TestAuthService_Login_Success(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()
	password := "StrongPass123"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	storedUser := &domain.User{
		ID:          7,
		Email:       "rider@example.com",
		Password:    string(hashed),
		DisplayName: "Rider",
		VehicleType: domain.VehicleMotorcycle,
	}
	mockUserRepo.On("FindByEmail", ctx, "rider@example.com").Return(storedUser, nil).Once()

	// Act
	token, user, err := authService.Login(ctx, "Rider@Example.com", password)

	// Assert: 邮箱大小写不敏感；token 能被验证回同一个用户
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	require.NotNil(t, user)
	assert.Empty(t, user.Password, "登录响应不应携带密码哈希")

	userID, err := authService.VerifyToken(token)
	assert.NoError(t, err, "刚签发的 token 应能通过验证")
	assert.Equal(t, uint(7), userID)

	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	storedUser := &domain.User{ID: 7, Email: "rider@example.com", Password: string(hashed)}
	mockUserRepo.On("FindByEmail", ctx, "rider@example.com").Return(storedUser, nil).Once()

	token, user, err := authService.Login(ctx, "rider@example.com", "wrong-password")

	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Empty(t, token)
	assert.Nil(t, user)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	ctx := context.Background()
	mockUserRepo.On("FindByEmail", ctx, "ghost@example.com").
		Return(nil, repository.ErrNotFound).
		Once()

	// 用户不存在和密码错误返回同一个错误，避免账号枚举
	token, user, err := authService.Login(ctx, "ghost@example.com", "whatever")

	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
	assert.Empty(t, token)
	assert.Nil(t, user)
	mockUserRepo.AssertExpectations(t)
}

// --- 测试 VerifyToken 方法 ---

func TestAuthService_VerifyToken_Invalid(t *testing.T) {
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, "very-secret-key", 1)
	require.NoError(t, err)

	_, err = authService.VerifyToken("not-a-jwt")
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed)

	// 用另一个密钥签的 token 必须被拒绝
	otherService, err := service.NewAuthService(mockUserRepo, "another-secret", 1)
	require.NoError(t, err)
	hashed, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.DefaultCost)
	mockUserRepo.On("FindByEmail", mock.Anything, "a@b.com").
		Return(&domain.User{ID: 1, Email: "a@b.com", Password: string(hashed)}, nil).Once()
	foreignToken, _, err := otherService.Login(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)

	_, err = authService.VerifyToken(foreignToken)
	assert.ErrorIs(t, err, service.ErrAuthenticationFailed, "不同密钥签发的 token 应验证失败")
}
