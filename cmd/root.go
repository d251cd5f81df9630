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

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/waweber/imapfs/cfg"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	MountConfig   cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "imapfs [flags] mount_point",
	Short: "Mount an IMAP mailbox as an encrypted local file system",
	Long: `imapfs is a FUSE adapter that stores an encrypted POSIX-ish file
          system inside an ordinary IMAP mailbox: every file, directory,
          and file block becomes one mail message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := cfg.ValidateConfig(&MountConfig); err != nil {
			return err
		}

		mountPoint, err := resolvePath(args[0])
		if err != nil {
			return fmt.Errorf("resolving mount point: %w", err)
		}

		if MountConfig.Logging.FilePath != "" {
			crashFile := string(MountConfig.Logging.FilePath) + ".crash"
			_ = debug.SetCrashOutput(NewCrashWriter(crashFile), debug.CrashOptions{})
		}

		return mount(cmd.Context(), mountPoint, &MountConfig)
	},
}

// resolvePath canonicalizes a path to absolute, the same way the original
// daemonizing caller needed to: a daemon changes its working directory
// before reading this code's arguments again.
func resolvePath(p string) (string, error) {
	return filepath.Abs(p)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	MountConfig.Logging = cfg.GetDefaultLoggingConfig()
	MountConfig.Mail = cfg.GetDefaultMailConfig()
	MountConfig.FileSystem = cfg.GetDefaultFileSystemConfig()

	// Config keys (e.g. "file-system.file-mode") are the yaml tag names.
	yamlTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }

	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig, viper.DecodeHook(cfg.DecodeHook()), yamlTags)
		return
	}

	resolved, err := resolvePath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig, viper.DecodeHook(cfg.DecodeHook()), yamlTags)
}
