package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SlpAus/chat-stats-bot/internal/command"
	"github.com/SlpAus/chat-stats-bot/internal/platform/config"
	"github.com/SlpAus/chat-stats-bot/internal/platform/logging"
	"github.com/SlpAus/chat-stats-bot/internal/platform/shutdown"
	"github.com/SlpAus/chat-stats-bot/internal/platform/startup"
	"github.com/SlpAus/chat-stats-bot/internal/stats"
	"github.com/SlpAus/chat-stats-bot/pkg/lifecycle"
)

const offlineTimeout = 30 * time.Second

type rootOptions struct {
	configPath string
	token      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCmd(opts)
	root := &cobra.Command{
		Use:          "statbot",
		Short:        "统计群聊消息的Telegram机器人",
		SilenceUsage: true,
		RunE:         serve.RunE, // 不带子命令时直接运行机器人
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径（默认在 ./config 和 . 中查找 config.yaml）")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "Telegram机器人令牌，覆盖 telegram.token")

	root.AddCommand(serve, newTopCmd(opts), newResetCmd(opts), newExportCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath, map[string]string{"telegram.token": o.token})
	if err != nil {
		return nil, err
	}
	if err := logging.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动机器人",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	app, err := startup.InitializeApplication(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("应用初始化失败，无法启动: %w", err)
	}

	gracefulMgr := lifecycle.NewManager("graceful")
	forcefulMgr := lifecycle.NewManager("forceful")
	if err := app.Start(gracefulMgr, forcefulMgr); err != nil {
		_ = app.Store.Close()
		return err
	}
	log.Info().Msg("机器人已准备就绪")

	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr)
	coordinator.ListenForSignalsAndShutdown(app.Server, app.Store.Close)
	return nil
}

// withStore 打开配置的存储，执行一个离线操作后关闭
func withStore(opts *rootOptions, fn func(ctx context.Context, store stats.Store) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), offlineTimeout)
	defer cancel()

	store, err := startup.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("关闭存储失败")
		}
	}()
	return fn(ctx, store)
}

func newTopCmd(opts *rootOptions) *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "top",
		Short: "打印一个聊天的排行榜",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store stats.Store) error {
				ranked, err := stats.GetRankedLeaderboard(ctx, store, chatID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), command.RenderLeaderboard(ranked))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "聊天ID")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func newResetCmd(opts *rootOptions) *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "删除一个聊天的全部统计数据",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store stats.Store) error {
				if err := store.Reset(ctx, chatID); err != nil {
					return err
				}
				log.Info().Int64("chat_id", chatID).Msg("聊天统计已重置")
				fmt.Fprintf(cmd.OutOrStdout(), "chat %d reset\n", chatID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "聊天ID")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

// newExportCmd 按写入顺序输出一个聊天的原始日志，每行一个JSON对象
func newExportCmd(opts *rootOptions) *cobra.Command {
	var chatID int64
	cmd := &cobra.Command{
		Use:   "export",
		Short: "导出一个聊天的消息日志（JSON Lines）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(ctx context.Context, store stats.Store) error {
				reader, ok := store.(stats.LogReader)
				if !ok {
					return errors.New("当前存储后端不支持导出日志")
				}
				entries, err := reader.Log(ctx, chatID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, entry := range entries {
					if err := enc.Encode(entry); err != nil {
						return fmt.Errorf("无法写出日志: %w", err)
					}
				}
				log.Info().Int64("chat_id", chatID).Int("entries", len(entries)).Msg("聊天日志已导出")
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "聊天ID")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}
