// Package database 负责建立各存储后端的客户端连接。
package database

import (
	"context"
	"fmt"

	"easy-canvas-go/internal/config"
	"easy-canvas-go/pkg/log"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// NewFirestore 创建 Firestore 客户端。未配置凭证文件时使用应用默认凭证。
func NewFirestore(ctx context.Context, cfg config.FirestoreConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	log.Infof("Firestore client connected, project=%s", cfg.ProjectID)
	return client, nil
}
