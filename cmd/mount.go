// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/waweber/imapfs/cfg"
	"github.com/waweber/imapfs/internal/envelope"
	"github.com/waweber/imapfs/internal/imapfs"
	"github.com/waweber/imapfs/internal/logger"
	"github.com/waweber/imapfs/internal/mailstore"
)

// mount dials the mailbox, builds the file system, and blocks until it is
// unmounted.
func mount(ctx context.Context, mountPoint string, newConfig *cfg.Config) error {
	if err := logger.InitLogFile(newConfig.Logging); err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	logger.SetLogFormat(newConfig.Logging.Format)

	codec, err := envelope.New(newConfig.Mail.Passphrase, newConfig.Mail.Rounds)
	if err != nil {
		return fmt.Errorf("deriving key: %w", err)
	}

	logger.Infof("dialing %s...", newConfig.Mail.Host)
	client, err := mailstore.Dial(mailstoreConfig(newConfig), codec)
	if err != nil {
		return fmt.Errorf("mailstore.Dial: %w", err)
	}

	logger.Infof("opening file system root...")
	fs, err := imapfs.New(ctx, client, newConfig.FileSystem)
	if err != nil {
		client.Logout()
		return fmt.Errorf("imapfs.New: %w", err)
	}

	server := fuseutil.NewFileSystemServer(fs)

	logger.Infof("mounting at %q...", mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, getFuseMountConfig(newConfig))
	if err != nil {
		client.Logout()
		return fmt.Errorf("fuse.Mount: %w", err)
	}

	if err := mfs.Join(ctx); err != nil {
		client.Logout()
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}

	return client.Logout()
}

func mailstoreConfig(newConfig *cfg.Config) mailstore.Config {
	return mailstore.Config{
		Addr:        fmt.Sprintf("%s:%d", newConfig.Mail.Host, newConfig.Mail.Port),
		TLS:         newConfig.Mail.TLS,
		User:        newConfig.Mail.User,
		Password:    newConfig.Mail.Password,
		Mailbox:     newConfig.Mail.Mailbox,
		CacheSize:   newConfig.Mail.UIDCacheSize,
		AppendSeen:  newConfig.Mail.AppendSeen,
		AppendDraft: newConfig.Mail.AppendDraft,
	}
}

func getFuseMountConfig(newConfig *cfg.Config) *fuse.MountConfig {
	mountCfg := &fuse.MountConfig{
		FSName:     "imapfs",
		Subtype:    "imapfs",
		VolumeName: newConfig.Mail.Mailbox,
	}

	// imapfs to jacobsa/fuse log level mapping: everything at ERROR or
	// louder goes to ErrorLogger; only TRACE, the per-operation wire
	// trace level, goes to DebugLogger.
	if newConfig.Logging.Severity.Rank() <= cfg.ErrorLogSeverity.Rank() {
		mountCfg.ErrorLogger = logger.NewLegacyLogger(logger.LevelError, "fuse: ", "fuse")
	}
	if newConfig.Logging.Severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		mountCfg.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "fuse_debug: ", "fuse")
	}
	return mountCfg
}
