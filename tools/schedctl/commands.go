package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/grpcx"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// newRootCmd builds the command tree. Every persistent flag can also be set through a
// SCHEDCTL_ prefixed environment variable, e.g. SCHEDCTL_ADDR or SCHEDCTL_GRPC_ADDR.
func newRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SCHEDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "schedctl",
		Short:        "Operator CLI for the clinic scheduling service",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().String("addr", "http://localhost:8090", "scheduling service HTTP base URL")
	root.PersistentFlags().String("grpc-addr", "localhost:9093", "scheduling service gRPC address")
	root.PersistentFlags().Duration("timeout", 10*time.Second, "request timeout")
	root.PersistentFlags().String("kafka-brokers", "localhost:9092", "comma separated Kafka brokers for watch")
	root.PersistentFlags().String("kafka-topic", "clinic.appointments", "appointment event topic")
	_ = v.BindPFlags(root.PersistentFlags())

	client := func() *apiClient {
		return newAPIClient(v.GetString("addr"), v.GetDuration("timeout"))
	}

	root.AddCommand(
		conflictsCmd(client),
		availabilityCmd(client),
		dayCmd(client),
		healthCmd(v),
		watchCmd(v),
	)
	return root
}

func conflictsCmd(client func() *apiClient) *cobra.Command {
	var (
		doctor  string
		at      string
		minutes int
		exclude string
	)
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Check whether a proposed slot overlaps the doctor's active appointments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{
				"doctor":           doctor,
				"date":             at,
				"duration_minutes": minutes,
			}
			if exclude != "" {
				body["exclude_id"] = exclude
			}
			raw, err := client().do(cmd.Context(), http.MethodPost, "/api/v1/appointments/conflicts", nil, body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&doctor, "doctor", "", "doctor name, matched exactly")
	cmd.Flags().StringVar(&at, "at", "", "start time, RFC3339 or YYYY-MM-DDTHH:MM in clinic time")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "appointment length in minutes (default 30)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "appointment id to ignore, when moving it")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func availabilityCmd(client func() *apiClient) *cobra.Command {
	var doctor, date string
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Show a doctor's booked slots and remaining capacity for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"doctor": {doctor}, "date": {date}}
			raw, err := client().do(cmd.Context(), http.MethodGet, "/api/v1/doctors/availability", q, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&doctor, "doctor", "", "doctor name, matched exactly")
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func dayCmd(client func() *apiClient) *cobra.Command {
	var date, query string
	cmd := &cobra.Command{
		Use:   "day",
		Short: "List every appointment on a day, optionally filtered by a search term",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{"date": {date}}
			if query != "" {
				q.Set("q", query)
			}
			raw, err := client().do(cmd.Context(), http.MethodGet, "/api/v1/appointments", q, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD")
	cmd.Flags().StringVar(&query, "q", "", "case-insensitive match on patient name, phone or type")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func healthCmd(v *viper.Viper) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpcx.Dial(v.GetString("grpc-addr"), grpcx.DialOptions{})
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "service name to check; empty checks the whole server")
	return cmd
}

func watchCmd(v *viper.Viper) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail appointment events as they are published",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := runtime.SignalContext()
			defer stop()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			out := cmd.OutOrStdout()
			consumer, err := kafkax.NewConsumer(logger, kafkax.ConsumerConfig{
				Brokers: v.GetString("kafka-brokers"),
				GroupID: group,
				Topic:   v.GetString("kafka-topic"),
			}, func(_ context.Context, msg kafka.Message) error {
				return printEvent(out, msg)
			})
			if err != nil {
				return err
			}
			consumer.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "schedctl-watch", "consumer group; watchers sharing a group split the topic's partitions")
	return cmd
}

// printEvent writes one line per event: type, key and the compact JSON payload.
func printEvent(w io.Writer, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	var buf bytes.Buffer
	if err := json.Compact(&buf, msg.Value); err != nil {
		buf.Reset()
		buf.Write(msg.Value)
	}
	_, err := fmt.Fprintf(w, "%s %s %s\n", meta.EventType, string(msg.Key), buf.String())
	return err
}
