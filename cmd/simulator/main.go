package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/wlan-simulator/core"
	"github.com/signalsfoundry/wlan-simulator/internal/logging"
	"github.com/signalsfoundry/wlan-simulator/internal/observability"
	"github.com/signalsfoundry/wlan-simulator/model"
	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML PHY configuration (defaults when empty)")
	frames := flag.Int("frames", 20, "number of frames to transmit")
	payload := flag.Uint("payload", 1500, "payload size per frame in bytes")
	gapFlag := flag.Duration("gap", 200*time.Microsecond, "idle gap between frames")
	pathLoss := flag.Float64("path-loss", 50, "path loss between the two stations in dB")
	mcs := flag.Int("mcs", 5, "HE MCS index for data frames")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := logging.New(logging.Config{Level: *logLevel, Format: "text"})
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "init tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	cfg := core.DefaultConfig()
	if *configPath != "" {
		cfg, err = core.LoadConfig(*configPath)
		if err != nil {
			log.Error(ctx, "load config", logging.String("error", err.Error()))
			os.Exit(1)
		}
	}

	collector, err := observability.NewPhyCollector(prometheus.NewRegistry())
	if err != nil {
		log.Error(ctx, "register metrics", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error(ctx, "metrics server", logging.String("error", err.Error()))
			}
		}()
		log.Info(ctx, "serving metrics", logging.String("addr", *metricsAddr))
	}

	sched := timectrl.NewScheduler(time.Unix(0, 0).UTC())
	uids := &model.UidSource{}

	sender, err := core.NewReceiver(sched, cfg, uids, log.With(logging.String("station", "sender")))
	if err != nil {
		log.Error(ctx, "build sender", logging.String("error", err.Error()))
		os.Exit(1)
	}
	receiver, err := core.NewReceiver(sched, cfg, uids, log.With(logging.String("station", "receiver")))
	if err != nil {
		log.Error(ctx, "build receiver", logging.String("error", err.Error()))
		os.Exit(1)
	}

	channel := core.NewSimpleChannel(sched, *pathLoss, time.Microsecond, log)
	channel.Attach(sender)
	channel.Attach(receiver)

	var okCount, errCount int
	receiver.SetReceiveOkCallback(func(psdu *model.Psdu, info model.RxSignalInfo, txVector model.TxVector, perMpdu []bool) {
		okCount++
		collector.RecordReceptionOk(model.RatioToDb(info.Snr))
		log.Info(ctx, "frame received",
			logging.Uint64("bytes", uint64(psdu.SizeBytes())),
			logging.Float64("snr_db", model.RatioToDb(info.Snr)),
			logging.Float64("rssi_dbm", info.RssiDbm),
		)
	})
	receiver.SetReceiveErrorCallback(func(psdu *model.Psdu, snr float64, reason model.FailureReason) {
		errCount++
		collector.RecordReceptionError(reason.String())
		log.Warn(ctx, "frame lost",
			logging.String("reason", reason.String()),
			logging.Float64("snr_db", model.RatioToDb(snr)),
		)
	})
	receiver.SetDropCallback(func(psdu *model.Psdu, reason model.FailureReason) {
		collector.RecordDrop(reason.String())
	})
	receiver.SetStateChangeCallback(func(oldState, newState core.State, spent time.Duration) {
		collector.RecordStateTransition(oldState.String(), newState.String(), spent)
	})
	receiver.SetMonitorSniffRxCallback(func(psdu *model.Psdu, sn model.SignalNoise, mpdu model.MpduInfo, _ model.TxVector) {
		log.Debug(ctx, "sniffed frame",
			logging.Uint64("ref", uint64(mpdu.RefNumber)),
			logging.Float64("signal_dbm", sn.SignalDbm),
			logging.Float64("noise_dbm", sn.NoiseDbm),
		)
	})

	energy := core.NewEnergyAccumulator(sched)
	receiver.RegisterListener(energy)

	mode := model.HeMcs(*mcs)
	txVector := model.TxVector{
		Mode:          mode,
		Preamble:      model.PreambleHe,
		ChannelWidth:  cfg.ChannelWidthMHz,
		GuardInterval: 800 * time.Nanosecond,
		Nss:           1,
		TxPowerDbm:    16,
	}

	var sendNext func(remaining int)
	sendNext = func(remaining int) {
		if remaining == 0 {
			return
		}
		psdu := model.NewPsdu(uint32(*payload))
		ppdu, err := sender.Send(psdu, txVector)
		if err != nil {
			log.Warn(ctx, "send failed", logging.String("error", err.Error()))
			return
		}
		collector.RecordTransmit()
		sched.ScheduleAfter(ppdu.Duration+*gapFlag, func() {
			sendNext(remaining - 1)
		})
	}
	sendNext(*frames)

	sched.Run()

	fmt.Printf("Transmitted %d frames over %d MHz at %s: %d received, %d lost\n",
		*frames, txVector.ChannelWidth, mode.Name, okCount, errCount)
	for state, d := range energy.Totals() {
		if d > 0 {
			fmt.Printf("  receiver time in %-9s %s\n", state.String()+":", d)
		}
	}
}
