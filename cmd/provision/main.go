// Command provision регистрирует партию устройств с производственной линии
// и при необходимости выдает для них коды активации.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/chainlesschain/chainlesschain-sub001/internal/client"
	"github.com/chainlesschain/chainlesschain-sub001/models"
)

const requestTimeout = 30 * time.Second

// options - параметры запуска. Токен и адрес можно задать через окружение.
type options struct {
	Server      string `envconfig:"PROVISION_SERVER" default:"https://localhost:8443"`
	AdminToken  string `envconfig:"ADMIN_TOKEN"`
	File        string `ignored:"true"`
	IssueCodes  bool   `ignored:"true"`
	InsecureTLS bool   `ignored:"true"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Printf("Ошибка: %v", err)
		os.Exit(1)
	}
}

// run разбирает аргументы, регистрирует партию и печатает отчет в out.
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	batch, err := readBatch(opts.File)
	if err != nil {
		return err
	}

	hc := &http.Client{Timeout: requestTimeout}
	if opts.InsecureTLS {
		// Самоподписанные сертификаты стенда
		hc.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec
	}
	api := client.NewHTTPClient(opts.Server, opts.AdminToken, hc)

	report, err := api.RegisterDevices(ctx, batch.Devices)
	if err != nil {
		return err
	}
	printReport(out, report)

	if !opts.IssueCodes || len(report.DeviceIDs) == 0 {
		return nil
	}
	return issueCodes(ctx, api, report.DeviceIDs, out)
}

func parseOptions(args []string) (*options, error) {
	opts := &options{}
	if err := envconfig.Process("", opts); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}

	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	fs.StringVar(&opts.Server, "server", opts.Server, "Адрес сервера (env: PROVISION_SERVER)")
	fs.StringVar(&opts.AdminToken, "admin-token", opts.AdminToken, "Токен администратора (env: ADMIN_TOKEN)")
	fs.StringVar(&opts.File, "file", "", "JSON-файл с партией устройств")
	fs.BoolVar(&opts.IssueCodes, "issue-codes", false, "Выдать коды активации для зарегистрированных устройств")
	fs.BoolVar(&opts.InsecureTLS, "insecure", false, "Не проверять TLS-сертификат сервера")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.File == "" {
		return nil, errors.New("не указан файл партии (-file)")
	}
	if opts.AdminToken == "" {
		return nil, errors.New("не указан токен администратора (-admin-token или ADMIN_TOKEN)")
	}
	return opts, nil
}

// readBatch читает файл партии в формате {"devices": [...]}.
func readBatch(path string) (*models.RegisterDevicesRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла партии: %w", err)
	}
	var batch models.RegisterDevicesRequest
	if err = json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла партии '%s': %w", path, err)
	}
	if len(batch.Devices) == 0 {
		return nil, fmt.Errorf("файл партии '%s' не содержит устройств", path)
	}
	return &batch, nil
}

func printReport(out io.Writer, report *models.RegistrationReport) {
	fmt.Fprintf(out, "Зарегистрировано: %d, ошибок: %d, всего: %d\n",
		report.Registered, report.Failed, report.Total)
	for _, f := range report.Failures {
		fmt.Fprintf(out, "  #%d %s: %s\n", f.Index, f.SerialNumber, f.Reason)
	}
}

// issueCodes выдает коды по одному и печатает строки device_id<TAB>activation_code.
// Ошибка по одному устройству не прерывает остальные.
func issueCodes(ctx context.Context, api client.Client, deviceIDs []string, out io.Writer) error {
	var failed int
	for _, id := range deviceIDs {
		code, err := api.IssueCode(ctx, id)
		if err != nil {
			log.Printf("[Provision] %v", err)
			failed++
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", code.DeviceID, code.ActivationCode)
	}
	if failed > 0 {
		return fmt.Errorf("не удалось выдать коды для %d из %d устройств", failed, len(deviceIDs))
	}
	return nil
}
