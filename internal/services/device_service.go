package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/chainlesschain/chainlesschain-sub001/internal/codes"
	"github.com/chainlesschain/chainlesschain-sub001/internal/models"
	"github.com/chainlesschain/chainlesschain-sub001/internal/repository"
	dto "github.com/chainlesschain/chainlesschain-sub001/models"
)

// DeviceService - реестр устройств: регистрация партий и выборки.
type DeviceService interface {
	Register(ctx context.Context, specs []dto.DeviceSpec) (*dto.RegistrationReport, error)
	Get(ctx context.Context, deviceID string) (*models.Device, error)
	GetOwned(ctx context.Context, deviceID string, userID int64) (*models.Device, error)
	List(ctx context.Context, filter models.DeviceFilter, page models.PageRequest) (models.Page[models.Device], error)
}

var _ DeviceService = (*deviceService)(nil)

type deviceService struct {
	base
	deviceRepo repository.DeviceRepository
	validate   *validator.Validate
}

// NewDeviceService создает сервис реестра устройств.
func NewDeviceService(deviceRepo repository.DeviceRepository, opts ...Option) DeviceService {
	return &deviceService{
		base:       newBase(opts),
		deviceRepo: deviceRepo,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register регистрирует партию устройств. Ошибка одной позиции не прерывает партию:
// она попадает в отчет, остальные позиции обрабатываются дальше.
func (s *deviceService) Register(ctx context.Context, specs []dto.DeviceSpec) (*dto.RegistrationReport, error) {
	report := &dto.RegistrationReport{Total: len(specs)}

	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		deviceID, err := s.registerOne(ctx, spec)
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, dto.RegistrationFailure{
				Index:        i,
				SerialNumber: spec.SerialNumber,
				Reason:       err.Error(),
			})
			continue
		}
		report.Registered++
		report.DeviceIDs = append(report.DeviceIDs, deviceID)
	}

	log.Printf("[DeviceService] Регистрация партии: зарегистрировано %d, ошибок %d, всего %d",
		report.Registered, report.Failed, report.Total)
	return report, nil
}

// registerOne валидирует и вставляет одно устройство. При коллизии идентификатора
// генерирует новый, не более maxDeviceIDAttempts раз.
func (s *deviceService) registerOne(ctx context.Context, spec dto.DeviceSpec) (string, error) {
	spec.SerialNumber = strings.TrimSpace(spec.SerialNumber)
	spec.Manufacturer = strings.TrimSpace(spec.Manufacturer)
	if err := s.validate.Struct(spec); err != nil {
		return "", validationError("%v", err)
	}

	deviceType := models.DeviceType(spec.DeviceType)
	device := &models.Device{
		DeviceType:      deviceType,
		SerialNumber:    spec.SerialNumber,
		Manufacturer:    spec.Manufacturer,
		Model:           spec.Model,
		HardwareVersion: spec.HardwareVersion,
		FirmwareVersion: spec.FirmwareVersion,
		Status:          models.StatusInactive,
	}

	for attempt := 1; attempt <= maxDeviceIDAttempts; attempt++ {
		device.DeviceID = codes.NewDeviceID(deviceType)
		err := s.deviceRepo.CreateDevice(ctx, device)
		switch {
		case err == nil:
			return device.DeviceID, nil
		case errors.Is(err, repository.ErrDeviceIDTaken):
			log.Printf("[DeviceService] Коллизия идентификатора, попытка %d из %d", attempt, maxDeviceIDAttempts)
			continue
		case errors.Is(err, repository.ErrSerialTaken):
			return "", ErrSerialTaken
		default:
			return "", internalError("создание устройства", err)
		}
	}
	return "", internalError("создание устройства", repository.ErrDeviceIDTaken)
}

// Get возвращает устройство по идентификатору.
func (s *deviceService) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := s.deviceRepo.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, internalError("получение устройства", err)
	}
	return device, nil
}

// GetOwned возвращает устройство, только если оно привязано к пользователю.
func (s *deviceService) GetOwned(ctx context.Context, deviceID string, userID int64) (*models.Device, error) {
	device, err := s.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsOwnedBy(userID) {
		log.Printf("[DeviceService] Пользователь %d запросил чужое устройство '%s'", userID, deviceID)
		return nil, ErrForbidden
	}
	return device, nil
}

// List возвращает страницу устройств по фильтру, сначала новые.
func (s *deviceService) List(
	ctx context.Context,
	filter models.DeviceFilter,
	page models.PageRequest,
) (models.Page[models.Device], error) {
	if filter.DeviceType != "" && !filter.DeviceType.Valid() {
		return models.Page[models.Device]{}, validationError("неизвестный тип устройства %q", filter.DeviceType)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return models.Page[models.Device]{}, validationError("неизвестное состояние %q", filter.Status)
	}

	page = page.Normalize()
	devices, total, err := s.deviceRepo.ListDevices(ctx, filter, page.Limit(), page.Offset())
	if err != nil {
		return models.Page[models.Device]{}, internalError("получение списка устройств", err)
	}
	return models.NewPage(devices, total, page), nil
}
