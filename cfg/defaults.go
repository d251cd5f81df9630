// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

import "os"

// GetDefaultLoggingConfig returns the default configuration that is to be used
// during application startup, before flags or a config file are parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: InfoLogSeverity,
		Format:   "text",
		LogRotate: LogRotateLoggingConfig{
			BackupFileCount: 10,
			Compress:        true,
			MaxFileSizeMb:   512,
		},
	}
}

// GetDefaultMailConfig returns the mail configuration used before flags or
// a config file are parsed.
func GetDefaultMailConfig() MailConfig {
	return MailConfig{
		Port:         993,
		TLS:          true,
		Mailbox:      "INBOX",
		Rounds:       10000,
		UIDCacheSize: 4096,
		AppendSeen:   true,
		AppendDraft:  true,
	}
}

// GetDefaultFileSystemConfig returns the file system attribute defaults
// used before flags or a config file are parsed: world-readable files,
// traversable directories, owned by whoever mounts.
func GetDefaultFileSystemConfig() FileSystemConfig {
	return FileSystemConfig{
		FileMode: 0666,
		DirMode:  0777,
		Uid:      uint32(os.Getuid()),
		Gid:      uint32(os.Getgid()),
	}
}
