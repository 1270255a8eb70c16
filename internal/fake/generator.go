// Package fake provides utilities for generating random servers, checks and votes
// for testing and development purposes.
package fake

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/models"
	"github.com/woozymasta/mcwatch/internal/storage"
)

// GenerateData populates the storage with count randomized servers, each with
// a history of checks and votes spread over the last 60 days.
func GenerateData(ctx context.Context, store *storage.Repository, count int) {
	software := []string{"Paper", "Purpur", "Spigot", "Fabric", "Forge", "Velocity"}
	versions := []string{"1.8.9", "1.12.2", "1.16.5", "1.19.4", "1.20.1", "1.20.4", "1.21"}
	gamemodes := []string{"Survival", "Creative", "Adventure"}
	plugins := []string{"EssentialsX", "WorldEdit", "LuckPerms", "Vault", "CoreProtect", "Dynmap"}
	names := []string{"craft", "mine", "block", "pixel", "realm", "nether", "ender", "sky"}

	// Countries list
	countriesHigh := []string{"US", "DE", "RU", "BR", "FR", "GB", "PL"}
	countriesLow := []string{"CA", "AU", "IT", "ES", "NL", "SE", "JP", "KR", "TR"}

	tok, err := store.CreateToken(ctx, "fake", uuid.NewString(), time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to create fake token")
		return
	}

	var servers, checks, votes int
	for i := 0; i < count; i++ {
		bedrock := rand.Float32() < 0.25
		edition := models.EditionOf(bedrock)
		address := fmt.Sprintf("%s%d.%s.net", names[rand.Intn(len(names))], i, names[rand.Intn(len(names))])

		maxPlayers := 20 + rand.Intn(10)*10
		status := models.Status{
			Version:  &versions[rand.Intn(len(versions))],
			Motd:     models.Motd{Raw: "§aWelcome to " + address, Clean: "Welcome to " + address},
			Host:     address,
			Players:  models.Players{Online: rand.Intn(maxPlayers), Max: maxPlayers},
			Protocol: 700 + rand.Intn(70),
			Online:   rand.Float32() < 0.8,
		}

		if bedrock {
			status.Port = 19132
			status.Bedrock = &models.BedrockFields{
				EditionName: "MCPE",
				Gamemode:    gamemodes[rand.Intn(len(gamemodes))],
				GUID:        fmt.Sprintf("%d", rand.Int63()),
			}
		} else {
			ping := int64(10 + rand.Intn(200))
			status.Port = 25565
			status.Java = &models.JavaFields{
				Software: &software[rand.Intn(len(software))],
				Ping:     &ping,
			}
			// 30% chance query mode
			if rand.Float32() < 0.3 {
				status.Java.Query = &models.QueryFields{
					IP:      fmt.Sprintf("%d.%d.%d.%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(255)),
					Map:     "world",
					Plugins: []string{plugins[rand.Intn(len(plugins))], plugins[rand.Intn(len(plugins))]},
				}
			}
		}

		rec, err := store.UpsertServer(ctx, models.NewKey(address, edition), status, time.Now())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake server")
			continue
		}
		servers++

		for j := rand.Intn(40); j > 0; j-- {
			country := countriesHigh[rand.Intn(len(countriesHigh))]
			if rand.Float32() < 0.3 {
				country = countriesLow[rand.Intn(len(countriesLow))]
			}
			ip := fmt.Sprintf("%d.%d.%d.%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(255))

			source := models.SourceWeb
			switch roll := rand.Float32(); {
			case roll < 0.2:
				source = models.SourceAPI
			case roll < 0.3:
				source = models.SourceBot
			}

			check := &models.Check{
				CheckedAt:     randomTime(60),
				ClientIP:      &ip,
				CountryCode:   &country,
				Source:        source,
				ServerID:      rec.ID,
				TokenID:       tok.ID,
				PlayersOnline: rand.Intn(maxPlayers),
				Online:        rand.Float32() < 0.9,
			}
			if err := store.AppendCheck(ctx, check); err != nil {
				log.Warn().Err(err).Msg("Failed to generate fake check")
				continue
			}
			checks++
		}

		for j := rand.Intn(15); j > 0; j-- {
			vote := &models.Vote{CreatedAt: randomTime(60), ServerID: rec.ID, UserID: int64(1 + rand.Intn(500))}
			if err := store.AppendVote(ctx, vote); err != nil {
				log.Warn().Err(err).Msg("Failed to generate fake vote")
				continue
			}
			votes++
		}
	}

	log.Info().
		Int("servers", servers).
		Int("checks", checks).
		Int("votes", votes).
		Msg("Fake data generated")
}

// randomTime returns a random instant within the last days.
func randomTime(days int) time.Time {
	return time.Now().
		Add(-time.Duration(rand.Intn(days)) * 24 * time.Hour).
		Add(-time.Duration(rand.Intn(1440)) * time.Minute)
}
