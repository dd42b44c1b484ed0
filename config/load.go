package config

import "github.com/joho/godotenv"

// Load reads optional .env files into the process environment. Missing files
// are ignored. The consuming application binds Config from the environment
// after calling this.
func Load(files ...string) {
	_ = godotenv.Load(files...)
}
