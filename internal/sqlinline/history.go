package sqlinline

const QInsertGeneration = `--sql e4ff4c7e-a9af-46c9-8f8a-e99730414aca
insert into generations (id, run_id, job_id, prompt, params, storage_key, format, width, height, created_at)
values (gen_random_uuid(), $1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
returning id;
`

const QListGenerations = `--sql c02f6112-cc11-4318-a1f3-042eb8dd8880
select id, run_id, job_id, prompt, params, storage_key, format, width, height, created_at
from generations
order by created_at desc
limit $1;
`

const QListGenerationsByRun = `--sql 812051eb-633d-41dc-83ba-156f00e681a8
select id, run_id, job_id, prompt, params, storage_key, format, width, height, created_at
from generations
where run_id = $1
order by created_at asc;
`
