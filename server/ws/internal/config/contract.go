// SPDX-License-Identifier: ice License 1.0

package config

import stdlibtime "time"

type (
	Config struct {
		Port         uint16              `yaml:"port"`
		WriteTimeout stdlibtime.Duration `yaml:"writeTimeout"`
		ReadTimeout  stdlibtime.Duration `yaml:"readTimeout"`
	}
)
