package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

func newArticleCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "article", Short: "Provision articles that own attachments"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <title>",
			Short: "Create an article",
			Args:  requireExactlyArgs(1, "title is required"),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cfg, func(client *api.Client) error {
					article, err := client.CreateArticle(cmd.Context(), api.ArticleCreateRequest{Title: args[0]})
					if err != nil {
						return err
					}
					return emit(out, article, func() error {
						return writePlain("created article %s\n", article.ID)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "show <article-id>",
			Short: "Show an article and its attachment list",
			Args:  requireExactlyArgs(1, "article id is required"),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cfg, func(client *api.Client) error {
					article, err := client.GetArticle(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return emit(out, article, func() error {
						_ = writePlain("id: %s\n", article.ID)
						_ = writePlain("title: %s\n", article.Title)
						_ = writePlain("updated: %s\n", humanAge(article.UpdatedAt))
						if len(article.AttachmentIDs) == 0 {
							return writePlain("attachments: none\n")
						}
						return writePlain("attachments: %s\n", strings.Join(article.AttachmentIDs, ", "))
					})
				})
			},
		},
	)
	return cmd
}

func newAttachCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "attach", Short: "Manage article attachments"}
	cmd.AddCommand(
		newAttachAddCmd(cfg, out),
		newAttachListCmd(cfg, out),
		newAttachShowCmd(cfg, out),
		newAttachGetCmd(cfg),
		newAttachRemoveCmd(cfg, out),
	)
	return cmd
}

func newAttachAddCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	var filename, mimeType string
	cmd := &cobra.Command{
		Use:   "add <article-id> <path>",
		Short: "Upload a file and attach it to an article",
		Args:  requireExactlyArgs(2, "article id and path are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[1]
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			name := strings.TrimSpace(filename)
			if name == "" {
				name = filepath.Base(path)
			}
			return withClient(cfg, func(client *api.Client) error {
				attachment, err := client.UploadAttachment(cmd.Context(), args[0], name, mimeType, file)
				if err != nil {
					return err
				}
				return emit(out, attachment, func() error { return writeAttachmentDetail(attachment) })
			})
		},
	}
	cmd.Flags().StringVar(&filename, "filename", "", "stored filename (defaults to the file's base name)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "declared media type")
	return cmd
}

func newAttachListCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <article-id>",
		Short: "List an article's attachments in order",
		Args:  requireExactlyArgs(1, "article id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				items, err := client.ListAttachments(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if items == nil {
					items = []models.Attachment{}
				}
				return emit(out, items, func() error { return writeAttachmentTable(items) })
			})
		},
	}
}

func newAttachShowCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <attachment-id>",
		Short: "Show attachment metadata",
		Args:  requireExactlyArgs(1, "attachment id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				attachment, err := client.GetAttachment(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(out, attachment, func() error { return writeAttachmentDetail(attachment) })
			})
		},
	}
}

func newAttachGetCmd(cfg *config.Config) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <attachment-id>",
		Short: "Download attachment content",
		Args:  requireExactlyArgs(1, "attachment id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				var w io.Writer = stdout
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				if err := client.DownloadAttachment(cmd.Context(), args[0], w); err != nil {
					if output != "" && output != "-" {
						_ = os.Remove(output)
					}
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newAttachRemoveCmd(cfg *config.Config, out *outputOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <article-id> <attachment-id>",
		Aliases: []string{"delete"},
		Short:   "Remove an attachment from an article",
		Args:    requireExactlyArgs(2, "article id and attachment id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteAttachment(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return emit(out, resp, func() error {
					if !resp.FileDeleted && resp.RecordDeleted {
						return writePlain("removed %s (blob was not deleted; a reconciliation scan will pick it up)\n", resp.ID)
					}
					return writePlain("removed %s\n", resp.ID)
				})
			})
		},
	}
}
