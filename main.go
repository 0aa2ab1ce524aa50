package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jwoglom/cgmbridge/pkg/api"
	"github.com/jwoglom/cgmbridge/pkg/bluetooth"
	"github.com/jwoglom/cgmbridge/pkg/cgm"
	"github.com/jwoglom/cgmbridge/pkg/config"

	// transmitter families register themselves
	_ "github.com/jwoglom/cgmbridge/pkg/handler"
	_ "github.com/jwoglom/cgmbridge/pkg/xbridge"

	"github.com/kardianos/service"
	log "github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "path to a YAML configuration file")
	family     = flag.String("family", "", "transmitter family ("+strings.Join(cgm.Families(), ", ")+")")
	id         = flag.String("id", "", "transmitter id")
	transport  = flag.String("transport", "", "hci, bluez or serial")
	listen     = flag.String("listen", "", "web API listen address")

	// if both verbose and quiet are chosen, e.g., -v -q, the verbose dominates
	traceLevel = flag.Bool("v", false, "verbose off by default, TraceLevel")
	infoLevel  = flag.Bool("q", false, "quiet off by default, InfoLevel")
)

// program runs one bridge session as a foreground process or a service.
// service.Run handles interrupts in both modes; a session that ends on its
// own ends the process through exit.
type program struct {
	cfg    *config.Config
	exit   func(code int)
	cancel context.CancelFunc
	done   chan struct{}
}

func newProgram(cfg *config.Config) *program {
	return &program{cfg: cfg, exit: os.Exit}
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		err := p.run(ctx)
		close(p.done)
		if err != nil && ctx.Err() == nil {
			log.Errorf("Bridge stopped: %v", err)
			p.exit(1)
		}
	}()
	return nil
}

func (p *program) run(ctx context.Context) error {
	cfg := p.cfg

	link := bluetooth.NewLink()
	server := api.New(cfg.Family)

	tx, err := cgm.New(cfg.Family, cgm.FactoryConfig{
		ID:                  cfg.TransmitterID,
		Link:                link,
		Delegate:            cgm.MultiDelegate{cgm.LogDelegate{}, server},
		BatteryReadInterval: cfg.BatteryReadInterval,
		KeepAlive:           cfg.PairingKeepAlive,
	})
	if err != nil {
		return fmt.Errorf("could not create %s session: %w", cfg.Family, err)
	}

	session := cgm.NewSerial(cfg.Family, tx)
	defer session.Close()
	link.Bind(session)
	server.SetController(session)

	central, err := bluetooth.NewCentral(cfg.Transport, link, bluetooth.Options{
		Address:        cfg.Address,
		ConnectTimeout: cfg.ConnectTimeout,
		Device:         cfg.SerialPort,
		BaudRate:       cfg.BaudRate,
	})
	if err != nil {
		return fmt.Errorf("could not start %s transport: %w", cfg.Transport, err)
	}
	server.SetTransportState(func() string { return string(central.State()) })

	go func() {
		if err := server.Start(cfg.APIListen); err != nil {
			log.Errorf("HTTP server failed: %v", err)
		}
	}()

	profile := session.Profile()
	log.Infof("Starting CGM bridge for %s transmitter %s over %s", cfg.Family, cfg.TransmitterID, cfg.Transport)
	log.Info("Service UUID: ", profile.ServiceUUID)
	if profile.ExpectedName != "" {
		log.Info("Expected name: ", profile.ExpectedName)
	}

	return central.Run(ctx)
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	log.Info("CGM bridge stopped")
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	// flags override the file
	if *family != "" {
		cfg.Family = strings.ToLower(*family)
	}
	if *id != "" {
		cfg.TransmitterID = strings.ToUpper(*id)
	}
	if *transport != "" {
		cfg.Transport = strings.ToLower(*transport)
	}
	if *listen != "" {
		cfg.APIListen = *listen
	}

	return cfg, cfg.Validate()
}

func setupLogging(cfg *config.Config) {
	switch {
	case *traceLevel:
		log.SetLevel(log.TraceLevel)
	case *infoLevel:
		log.SetLevel(log.InfoLevel)
	default:
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = log.DebugLevel
		}
		log.SetLevel(level)
	}

	log.SetFormatter(&log.TextFormatter{
		DisableQuote: true,
		ForceColors:  service.Interactive(),
	})
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	setupLogging(cfg)

	svcConfig := &service.Config{
		Name:        "cgmbridge",
		DisplayName: "CGM Bridge",
		Description: "Collects readings from a CGM transmitter",
	}
	if *configPath != "" {
		svcConfig.Arguments = []string{"-config", *configPath}
	}

	prg := newProgram(cfg)
	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	if args := flag.Args(); len(args) > 0 {
		if err := service.Control(s, args[0]); err != nil {
			log.Fatalf("Service %s failed: %v (valid actions: %s)", args[0], err, strings.Join(service.ControlAction[:], ", "))
		}
		return
	}

	if err := s.Run(); err != nil {
		log.Fatal(err)
	}
}
