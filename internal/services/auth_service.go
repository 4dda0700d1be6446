package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chainlesschain/chainlesschain-sub001/internal/codes"
	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
	"github.com/chainlesschain/chainlesschain-sub001/models"
)

// AuthService определяет интерфейс для сервиса аутентификации владельцев устройств.
type AuthService interface {
	Register(ctx context.Context, username, password string) (int64, error)
	Login(ctx context.Context, username, password string) (string, error) // Возвращает JWT токен или ошибку
	SetRecoveryKey(ctx context.Context, userID int64, publicKey []byte) error
}

// Время жизни токена по умолчанию.
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "ukey-lifecycle-server"

// Структура для пользовательских данных в JWT (claims).
type jwtClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

var _ AuthService = (*authService)(nil)

type authService struct {
	base
	userRepo  repository.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService создает новый экземпляр сервиса аутентификации.
func NewAuthService(userRepo repository.UserRepository, jwtSecret []byte, tokenTTL time.Duration, opts ...Option) AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &authService{base: newBase(opts), userRepo: userRepo, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// Register регистрирует нового пользователя и возвращает его ID.
func (s *authService) Register(ctx context.Context, username, password string) (int64, error) {
	if len(password) < minPasswordLen {
		return 0, validationError("пароль короче %d символов", minPasswordLen)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[AuthService] Ошибка хеширования пароля для '%s': %v", username, err)
		return 0, internalError("хеширование пароля", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hashedPassword),
	}

	userID, err := s.userRepo.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			log.Printf("[AuthService] Попытка регистрации с занятым именем: %s", username)
			return 0, ErrUsernameTaken
		}
		log.Printf("[AuthService] Непредвиденная ошибка репозитория при регистрации '%s': %v", username, err)
		return 0, internalError("создание пользователя", err)
	}

	log.Printf("[AuthService] Пользователь '%s' успешно зарегистрирован", username)
	return userID, nil
}

// Login аутентифицирует пользователя и возвращает JWT токен.
func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Printf("[AuthService] Попытка входа несуществующего пользователя: %s", username)
			return "", ErrInvalidCredentials // Общая ошибка для несуществующего пользователя и неверного пароля
		}
		log.Printf("[AuthService] Ошибка репозитория при поиске '%s': %v", username, err)
		return "", internalError("поиск пользователя", err)
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Printf("[AuthService] Неверный пароль для пользователя: %s", username)
		return "", ErrInvalidCredentials
	}

	token, err := s.generateJWT(user.ID)
	if err != nil {
		log.Printf("[AuthService] Ошибка генерации JWT для '%s': %v", username, err)
		return "", internalError("генерация токена", err)
	}

	log.Printf("[AuthService] Пользователь '%s' успешно аутентифицирован", username)
	return token, nil
}

// SetRecoveryKey регистрирует открытый ключ Ed25519, которым пользователь подписывает
// вызовы восстановления учетной записи. Новый ключ заменяет прежний.
func (s *authService) SetRecoveryKey(ctx context.Context, userID int64, publicKey []byte) error {
	if !codes.ValidRecoveryKey(publicKey) {
		return validationError("ключ восстановления должен быть открытым ключом Ed25519")
	}
	if err := s.userRepo.SetRecoveryKey(ctx, userID, publicKey); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		log.Printf("[AuthService] Ошибка сохранения ключа восстановления пользователя %d: %v", userID, err)
		return internalError("сохранение ключа восстановления", err)
	}
	log.Printf("[AuthService] Пользователь %d зарегистрировал ключ восстановления", userID)
	return nil
}

// generateJWT создает и подписывает JWT токен для пользователя.
func (s *authService) generateJWT(userID int64) (string, error) {
	now := s.clock()
	claims := jwtClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи JWT: %w", err)
	}
	return signedToken, nil
}
