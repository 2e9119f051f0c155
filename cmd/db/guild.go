package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/obviouslynottop1/snedbot/internal/automod/policy"
	"github.com/obviouslynottop1/snedbot/internal/database"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// guildCommand returns the subcommands that edit stored guild settings.
// Running bots pick changes up once their policy cache entry expires.
func guildCommand(repo *database.Repository, logger *zap.Logger) *cli.Command {
	return &cli.Command{
		Name:  "guild",
		Usage: "Inspect and edit stored guild moderation settings",
		Commands: []*cli.Command{
			{
				Name:      "flags-channel",
				Usage:     "Set the channel that receives flagged messages",
				ArgsUsage: "GUILD_ID CHANNEL_ID",
				Action: func(ctx context.Context, c *cli.Command) error {
					ids, err := parseIDs(c, 2)
					if err != nil {
						return err
					}

					if err := repo.ModConfig().SetFlagsChannel(ctx, ids[0], ids[1]); err != nil {
						return err
					}

					logger.Info("Set flags channel",
						zap.Uint64("guildID", uint64(ids[0])),
						zap.Uint64("channelID", uint64(ids[1])))

					return nil
				},
			},
			{
				Name:  "policies",
				Usage: "Manage the automod policy document",
				Commands: []*cli.Command{
					{
						Name:      "show",
						Usage:     "Print the effective policies, stored values merged over the defaults",
						ArgsUsage: "GUILD_ID",
						Action: func(ctx context.Context, c *cli.Command) error {
							ids, err := parseIDs(c, 1)
							if err != nil {
								return err
							}

							return showPolicies(ctx, repo, ids[0])
						},
					},
					{
						Name:      "set",
						Usage:     "Store a policy document read from a JSON file",
						ArgsUsage: "GUILD_ID FILE",
						Action: func(ctx context.Context, c *cli.Command) error {
							if c.Args().Len() != 2 {
								return ErrWrongArgs
							}

							guildID, err := snowflake.Parse(c.Args().Get(0))
							if err != nil {
								return fmt.Errorf("invalid guild ID: %w", err)
							}

							document, err := os.ReadFile(c.Args().Get(1))
							if err != nil {
								return fmt.Errorf("failed to read policy document: %w", err)
							}

							// Refuse anything the bot would reject as corrupt
							if _, err := policy.Resolve(document); err != nil {
								return err
							}

							if err := repo.ModConfig().SaveAutomodPolicies(ctx, guildID, document); err != nil {
								return err
							}

							logger.Info("Stored automod policies", zap.Uint64("guildID", uint64(guildID)))

							return nil
						},
					},
				},
			},
			{
				Name:      "member",
				Usage:     "Show the warnings and journal of a member",
				ArgsUsage: "GUILD_ID USER_ID",
				Action: func(ctx context.Context, c *cli.Command) error {
					ids, err := parseIDs(c, 2)
					if err != nil {
						return err
					}

					user, err := repo.GuildUser().GetGuildUser(ctx, ids[0], ids[1])
					if err != nil {
						return err
					}

					logger.Info("Member moderation state",
						zap.Uint64("guildID", uint64(user.GuildID)),
						zap.Uint64("userID", uint64(user.UserID)),
						zap.Int("warns", user.Warns),
						zap.Strings("notes", user.Notes))

					return nil
				},
			},
		},
	}
}

// showPolicies prints the policy document a guild is moderated with.
func showPolicies(ctx context.Context, repo *database.Repository, guildID snowflake.ID) error {
	stored, ok, err := repo.ModConfig().GetAutomodPolicies(ctx, guildID)
	if err != nil {
		return err
	}

	doc := policy.Defaults()

	if ok {
		parsed, err := policy.ParseDocument(stored)
		if err != nil {
			return err
		}

		doc = policy.Merge(parsed, doc)
	}

	out, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode policies: %w", err)
	}

	fmt.Println(string(out))

	return nil
}

// parseIDs parses exactly n snowflake arguments.
func parseIDs(c *cli.Command, n int) ([]snowflake.ID, error) {
	if c.Args().Len() != n {
		return nil, ErrWrongArgs
	}

	ids := make([]snowflake.ID, n)

	for i := range n {
		id, err := snowflake.Parse(c.Args().Get(i))
		if err != nil {
			return nil, fmt.Errorf("invalid ID %q: %w", c.Args().Get(i), err)
		}

		ids[i] = id
	}

	return ids, nil
}
